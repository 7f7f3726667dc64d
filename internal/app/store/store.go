/*
Package store implements the persistent storage collaborator on PostgreSQL.

This file defines the interfaces the HTTP handlers depend on; the message
service declares its own narrower Store interface in the message package.
All not-found conditions are reported as errors matching db.IsNotFound.
*/
package store

import (
	"context"

	"pairchat/internal/app/user"
)

// Credentials pairs an identity with its password hash for login verification.
type Credentials struct {
	Identity     user.Identity
	PasswordHash string
}

// CreateUserParams carries a validated registration into the store.
type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
}

// UserStore is the account persistence boundary used by the auth handlers.
type UserStore interface {
	CreateUser(ctx context.Context, params CreateUserParams) (user.Identity, error)
	GetUserByEmail(ctx context.Context, email string) (Credentials, error)
	GetUserByID(ctx context.Context, id string) (user.Identity, error)
}
