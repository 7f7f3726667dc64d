/*
Package message implements the message delivery service: validation,
persistence through the storage collaborator, and best-effort realtime relay
to the recipient.

This file defines the Message value and the inbound content shape.
*/
package message

import "time"

// Message is a persisted one-to-one message. It is immutable once created;
// the id and timestamp are assigned by the store.
type Message struct {
	// ID is the server-assigned identifier.
	ID string `json:"id"`

	// SenderID is the user id of the author.
	SenderID string `json:"senderId"`

	// RecipientID is the user id of the addressee.
	RecipientID string `json:"recipientId"`

	// Text is the message text. May be empty when an image is attached.
	Text string `json:"text,omitempty"`

	// ImageKey references the stored image payload, if any.
	ImageKey string `json:"imageKey,omitempty"`

	// CreatedAt is the server-assigned creation time.
	CreatedAt time.Time `json:"createdAt"`
}

// Content is what a sender submits: text, an image as a data URL, or both.
// At least one must be non-empty.
type Content struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}
