/*
Package user contains the data structures for user identity.

A user identity is the durable account record, distinct from any transient
connection a client may hold.
*/
package user

// Identity represents a registered user as seen by the rest of the system.
// The id is opaque and stable; name and avatar are display attributes.
type Identity struct {
	// ID is the unique, immutable identifier for the user.
	ID string `json:"id"`

	// Email is the account email, used only at the authentication boundary.
	Email string `json:"email,omitempty"`

	// Name is the display name shown to other users.
	Name string `json:"name"`

	// Avatar is an optional reference to the user's avatar image.
	Avatar string `json:"avatar,omitempty"`
}
