/*
Package client is the Go SDK for a pairchat server.

This file contains the per-peer conversation state: optimistic local insertion
of outgoing messages, reconciliation with the server-confirmed record, rollback
to a failed state on error, and the scoped inbound-message subscription that is
swapped atomically on peer switch.
*/
package client

import (
	"context"
	"errors"
	"time"

	"pairchat/internal/app/message"
	"pairchat/internal/pkg/randx"
)

// ErrNoActivePeer is returned when sending without a selected conversation.
var ErrNoActivePeer = errors.New("client: no active peer selected")

// EntryStatus is the delivery state of a conversation entry.
type EntryStatus string

const (
	// StatusPending marks an optimistic entry not yet confirmed by the server.
	StatusPending EntryStatus = "pending"

	// StatusDelivered marks an entry backed by a persisted server record.
	StatusDelivered EntryStatus = "delivered"

	// StatusFailed marks an entry whose send failed. It stays visible so the
	// user can retry or discard it.
	StatusFailed EntryStatus = "failed"
)

// Entry is one visual row of a conversation. An outgoing message has exactly
// one Entry for its whole life: it is created pending with a local id and
// mutated in place on confirmation or failure, so a placeholder and its
// confirmation can never both be visible.
type Entry struct {
	// LocalID is the client-generated temporary id. It never changes, even
	// after the server record arrives.
	LocalID string

	// Message is the message content. Until confirmation its ID is empty;
	// afterwards it is the authoritative server record.
	Message message.Message

	// Status is the entry's delivery state.
	Status EntryStatus
}

// Notification reports a delivered message for a conversation other than the
// active one.
type Notification struct {
	FromID  string
	Message message.Message
}

// messenger is the slice of the API the conversation state needs.
type messenger interface {
	Messages(ctx context.Context, peerID string) ([]message.Message, error)
	SendMessage(ctx context.Context, peerID string, content message.Content) (message.Message, error)
}

// Conversations tracks per-peer message lists and the active conversation.
// All state is guarded by the session mutex discipline: one lock, short
// critical sections, network calls outside.
type Conversations struct {
	session *Session
	api     messenger
	selfID  string

	// active is the currently selected peer id, empty when none.
	active string

	// byPeer stores every conversation, selected or not. Inbound messages
	// for background peers are retained here.
	byPeer map[string][]*Entry

	// sub is the inbound listener scoped to the lifetime of this object.
	sub *Subscription

	// onNotify receives messages for non-active conversations.
	onNotify func(Notification)
}

// NewConversations builds conversation state for an authenticated session.
func NewConversations(session *Session) (*Conversations, error) {
	identity := session.Identity()
	if identity == nil {
		return nil, ErrNotLoggedIn
	}

	c := &Conversations{
		session: session,
		api:     session.API(),
		selfID:  identity.ID,
		byPeer:  make(map[string][]*Entry),
	}

	return c, nil
}

// OnNotification installs the callback invoked for messages addressed to a
// conversation other than the active one.
func (c *Conversations) OnNotification(fn func(Notification)) {
	c.session.mu.Lock()
	c.onNotify = fn
	c.session.mu.Unlock()
}

// ActivePeer returns the currently selected peer id, empty when none.
func (c *Conversations) ActivePeer() string {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.active
}

// SelectPeer switches the active conversation. The previous subscription is
// released and the new one installed inside one critical section, so there is
// no window with zero or two active listeners. History is then fetched and
// merged beneath any local entries still pending or failed.
func (c *Conversations) SelectPeer(ctx context.Context, peerID string) error {
	c.session.mu.Lock()
	if c.sub != nil {
		delete(c.session.subs, c.sub.id)
		c.sub = nil
	}
	c.active = peerID

	c.session.nextSub++
	id := c.session.nextSub
	c.session.subs[id] = c.handleInbound
	c.sub = &Subscription{session: c.session, id: id}
	c.session.mu.Unlock()

	history, err := c.api.Messages(ctx, peerID)
	if err != nil {
		return err
	}

	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	fetched := make(map[string]struct{}, len(history))
	entries := make([]*Entry, 0, len(history))
	for _, msg := range history {
		fetched[msg.ID] = struct{}{}
		entries = append(entries, &Entry{
			LocalID: msg.ID,
			Message: msg,
			Status:  StatusDelivered,
		})
	}
	// Local entries are kept at the tail in two cases: sends still awaiting
	// confirmation (or kept visible after a failure), and delivered messages
	// that raced the fetch and are not in the server history yet. Matching by
	// message id keeps the merge free of duplicates.
	for _, entry := range c.byPeer[peerID] {
		if entry.Status != StatusDelivered {
			entries = append(entries, entry)
			continue
		}
		if _, ok := fetched[entry.Message.ID]; !ok {
			entries = append(entries, entry)
		}
	}
	c.byPeer[peerID] = entries

	return nil
}

// Send performs an optimistic local send to the active peer. The returned
// Entry is the direct handle used for reconciliation: on success it is
// replaced in place by the authoritative record, on failure it is marked
// failed. Concurrent in-flight sends each hold their own handle, so
// reconciliation is never ambiguous. A response arriving after the user
// switched peers still updates the originating conversation.
func (c *Conversations) Send(ctx context.Context, content message.Content) (*Entry, error) {
	c.session.mu.Lock()
	peerID := c.active
	if peerID == "" {
		c.session.mu.Unlock()
		return nil, ErrNoActivePeer
	}

	entry := &Entry{
		LocalID: randx.TempID(),
		Message: message.Message{
			SenderID:    c.selfID,
			RecipientID: peerID,
			Text:        content.Text,
			CreatedAt:   time.Now(),
		},
		Status: StatusPending,
	}
	c.byPeer[peerID] = append(c.byPeer[peerID], entry)
	c.session.mu.Unlock()

	msg, err := c.api.SendMessage(ctx, peerID, content)

	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	if err != nil {
		entry.Status = StatusFailed
		return entry, err
	}

	entry.Message = msg
	entry.Status = StatusDelivered
	return entry, nil
}

// Retry resubmits a failed entry, reusing its handle so the conversation
// still shows exactly one row for the message.
func (c *Conversations) Retry(ctx context.Context, entry *Entry) error {
	c.session.mu.Lock()
	if entry.Status != StatusFailed {
		c.session.mu.Unlock()
		return errors.New("client: only failed entries can be retried")
	}
	entry.Status = StatusPending
	peerID := entry.Message.RecipientID
	content := message.Content{Text: entry.Message.Text}
	c.session.mu.Unlock()

	msg, err := c.api.SendMessage(ctx, peerID, content)

	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	if err != nil {
		entry.Status = StatusFailed
		return err
	}

	entry.Message = msg
	entry.Status = StatusDelivered
	return nil
}

// Discard removes a failed entry from its conversation.
func (c *Conversations) Discard(entry *Entry) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	peerID := entry.Message.RecipientID
	entries := c.byPeer[peerID]
	for i, e := range entries {
		if e == entry {
			c.byPeer[peerID] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Entries returns a snapshot of the conversation with the given peer.
func (c *Conversations) Entries(peerID string) []Entry {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	entries := c.byPeer[peerID]
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		out[i] = *entry
	}
	return out
}

// Close releases the inbound subscription.
func (c *Conversations) Close() {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()

	if c.sub != nil {
		delete(c.session.subs, c.sub.id)
		c.sub = nil
	}
	c.active = ""
}

// handleInbound routes a delivered message: into the active view when it
// comes from the active peer, otherwise into that peer's stored conversation
// plus a notification.
func (c *Conversations) handleInbound(msg message.Message) {
	c.session.mu.Lock()

	entry := &Entry{
		LocalID: msg.ID,
		Message: msg,
		Status:  StatusDelivered,
	}
	c.byPeer[msg.SenderID] = append(c.byPeer[msg.SenderID], entry)

	notify := c.onNotify
	isBackground := msg.SenderID != c.active
	c.session.mu.Unlock()

	if isBackground && notify != nil {
		notify(Notification{FromID: msg.SenderID, Message: msg})
	}
}
