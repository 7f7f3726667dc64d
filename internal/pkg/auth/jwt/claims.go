package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims carried by a pairchat session token.
// It embeds the standard claims plus the fields needed to rebuild the user
// identity on every request without a database round trip.
type Payload struct {
	// StandardClaims embeds Exp, Iat and Iss, used for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the durable user identifier the token authenticates.
	ID string `json:"id"`

	// Email is the account email the token was issued for.
	Email string `json:"email"`

	// Name is the user's display name.
	Name string `json:"name"`

	// Avatar is the user's avatar reference, if any.
	Avatar string `json:"avatar,omitempty"`
}
