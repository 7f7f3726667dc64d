/*
Package message implements the message delivery service.

This file defines the Service struct. A send is validated, the image payload
(if any) is written to the image store, the message is persisted, and only then
is it relayed to the recipient's live connections. Persistence failure aborts
the send; a relay miss does not.
*/
package message

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pairchat/internal/app/db"
	"pairchat/internal/app/realtime"
	"pairchat/internal/app/user"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
)

// CreateMessageParams carries a validated message into the store.
type CreateMessageParams struct {
	SenderID    string
	RecipientID string
	Text        string
	ImageKey    string
}

// Store is the persistence collaborator. Lookups that find nothing return an
// error matching db.IsNotFound.
type Store interface {
	GetUserByID(ctx context.Context, id string) (user.Identity, error)
	ListUsersExcept(ctx context.Context, id string) ([]user.Identity, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	ListMessagesBetween(ctx context.Context, userA, userB string) ([]Message, error)
}

// Relay pushes an event to the recipient's live connections, returning how
// many it reached. Zero means the recipient is offline; the event is gone.
type Relay interface {
	Send(toUserID string, event realtime.Event) int
}

// ImageStore holds image payloads referenced by messages.
type ImageStore interface {
	Put(ctx context.Context, key string, mimeType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Service validates, persists, and relays one-to-one messages.
type Service struct {
	store  Store
	relay  Relay
	images ImageStore
	logger zerolog.Logger
}

// NewService constructs the delivery service.
func NewService(store Store, relay Relay, images ImageStore) *Service {
	return &Service{
		store:  store,
		relay:  relay,
		images: images,
		logger: logx.Logger().With().Str("component", "MessageService").Logger(),
	}
}

// Send validates and persists a message, then relays it to the recipient.
// The persisted message is returned to the sender whether or not the relay
// reached anyone: the store is the durability boundary, the channel only adds
// immediacy.
func (s *Service) Send(ctx context.Context, senderID, recipientID string, content Content) (Message, *errs.CustomError) {
	if senderID == "" {
		return Message{}, errs.NewError(errs.ErrUnauthorized)
	}

	if content.Text == "" && content.Image == "" {
		return Message{}, errs.NewError(errs.ErrMessageEmpty)
	}

	if len(content.Text) > MaxTextBytes {
		return Message{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	if _, err := s.store.GetUserByID(ctx, recipientID); err != nil {
		if db.IsNotFound(err) {
			return Message{}, errs.NewError(errs.ErrRecipientNotFound)
		}
		s.logger.Error().Err(err).Str("recipient_id", recipientID).Msg("Recipient lookup failed.")
		return Message{}, errs.NewError(errs.ErrUnknown, err)
	}

	imageKey := ""
	if content.Image != "" {
		mimeType, data, cerr := ParseImageDataURL(content.Image)
		if cerr != nil {
			return Message{}, cerr
		}

		imageKey = fmt.Sprintf("messages/%s/%s%s", senderID, randx.MessageID(), MIMEToExt[mimeType])
		if err := s.images.Put(ctx, imageKey, mimeType, data); err != nil {
			s.logger.Error().Err(err).Str("image_key", imageKey).Msg("Image store write failed.")
			return Message{}, errs.NewError(errs.ErrImageStorageFailed)
		}
	}

	// Persist before relaying. A message that was relayed but not stored
	// would vanish on the next history fetch.
	msg, err := s.store.CreateMessage(ctx, CreateMessageParams{
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        content.Text,
		ImageKey:    imageKey,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("sender_id", senderID).
			Str("recipient_id", recipientID).
			Msg("Message persistence failed.")

		// The uploaded image would be unreachable without a message row
		// referencing it; remove it rather than leave it orphaned.
		if imageKey != "" {
			if derr := s.images.Delete(ctx, imageKey); derr != nil {
				s.logger.Warn().Err(derr).Str("image_key", imageKey).Msg("Orphaned image cleanup failed.")
			}
		}

		return Message{}, errs.NewError(errs.ErrPersistenceFailure)
	}

	event, evErr := realtime.NewEvent(realtime.EventMessageDelivered, msg)
	if evErr != nil {
		s.logger.Error().Err(evErr).Str("message_id", msg.ID).Msg("Error building delivery event.")
		return msg, nil
	}

	if delivered := s.relay.Send(recipientID, event); delivered == 0 {
		s.logger.Info().
			Str("message_id", msg.ID).
			Str("recipient_id", recipientID).
			Msg("Recipient offline, message persisted without realtime delivery.")
	}

	return msg, nil
}

// History returns all messages between the two users in either direction,
// ordered by creation time ascending. The result is identical regardless of
// argument order. The peer must exist.
func (s *Service) History(ctx context.Context, selfID, peerID string) ([]Message, *errs.CustomError) {
	if _, err := s.store.GetUserByID(ctx, peerID); err != nil {
		if db.IsNotFound(err) {
			return nil, errs.NewError(errs.ErrUserNotFound)
		}
		s.logger.Error().Err(err).Str("peer_id", peerID).Msg("Peer lookup failed.")
		return nil, errs.NewError(errs.ErrUnknown, err)
	}

	messages, err := s.store.ListMessagesBetween(ctx, selfID, peerID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("self_id", selfID).
			Str("peer_id", peerID).
			Msg("History fetch failed.")
		return nil, errs.NewError(errs.ErrPersistenceFailure)
	}

	return messages, nil
}

// Contacts returns every known user except the caller.
func (s *Service) Contacts(ctx context.Context, selfID string) ([]user.Identity, *errs.CustomError) {
	users, err := s.store.ListUsersExcept(ctx, selfID)
	if err != nil {
		s.logger.Error().Err(err).Str("self_id", selfID).Msg("Contact list fetch failed.")
		return nil, errs.NewError(errs.ErrPersistenceFailure)
	}

	return users, nil
}
