/*
Package store implements the persistent storage collaborator on PostgreSQL.

This file contains the pgx-backed implementation serving both the auth
handlers (UserStore) and the message service (message.Store).
*/
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairchat/internal/app/db"
	"pairchat/internal/app/message"
	"pairchat/internal/app/user"
)

// Postgres is the pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an initialized connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// CreateUser inserts a new account and returns the assigned identity.
func (p *Postgres) CreateUser(ctx context.Context, params CreateUserParams) (user.Identity, error) {
	const q = `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, name, avatar_url`

	var identity user.Identity
	err := p.pool.QueryRow(ctx, q,
		strings.ToLower(params.Email), params.Name, params.PasswordHash,
	).Scan(&identity.ID, &identity.Email, &identity.Name, &identity.Avatar)
	if err != nil {
		return user.Identity{}, fmt.Errorf("create user: %w", err)
	}

	return identity, nil
}

// GetUserByEmail fetches the identity and password hash for login checks.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (Credentials, error) {
	const q = `
		SELECT id, email, name, avatar_url, password_hash
		FROM users
		WHERE email = $1`

	var creds Credentials
	err := p.pool.QueryRow(ctx, q, strings.ToLower(email)).Scan(
		&creds.Identity.ID,
		&creds.Identity.Email,
		&creds.Identity.Name,
		&creds.Identity.Avatar,
		&creds.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, db.ErrNotFound
		}
		return Credentials{}, fmt.Errorf("get user by email: %w", err)
	}

	return creds, nil
}

// GetUserByID resolves a user id to its identity.
func (p *Postgres) GetUserByID(ctx context.Context, id string) (user.Identity, error) {
	const q = `
		SELECT id, email, name, avatar_url
		FROM users
		WHERE id = $1`

	var identity user.Identity
	err := p.pool.QueryRow(ctx, q, id).Scan(
		&identity.ID, &identity.Email, &identity.Name, &identity.Avatar,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Identity{}, db.ErrNotFound
		}
		return user.Identity{}, fmt.Errorf("get user by id: %w", err)
	}

	return identity, nil
}

// ListUsersExcept returns every user except the given one, newest first.
func (p *Postgres) ListUsersExcept(ctx context.Context, id string) ([]user.Identity, error) {
	const q = `
		SELECT id, name, avatar_url
		FROM users
		WHERE id <> $1
		ORDER BY created_at DESC`

	rows, err := p.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []user.Identity{}
	for rows.Next() {
		var identity user.Identity
		if err := rows.Scan(&identity.ID, &identity.Name, &identity.Avatar); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}

// CreateMessage inserts a message; id and created_at are assigned by the
// database and returned with the row.
func (p *Postgres) CreateMessage(ctx context.Context, params message.CreateMessageParams) (message.Message, error) {
	const q = `
		INSERT INTO messages (sender_id, recipient_id, text, image_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sender_id, recipient_id, text, image_key, created_at`

	var msg message.Message
	err := p.pool.QueryRow(ctx, q,
		params.SenderID, params.RecipientID, params.Text, params.ImageKey,
	).Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Text, &msg.ImageKey, &msg.CreatedAt)
	if err != nil {
		return message.Message{}, fmt.Errorf("create message: %w", err)
	}

	return msg, nil
}

// ListMessagesBetween returns the full conversation between two users in
// either direction, oldest first. Symmetric in its arguments.
func (p *Postgres) ListMessagesBetween(ctx context.Context, userA, userB string) ([]message.Message, error) {
	const q = `
		SELECT id, sender_id, recipient_id, text, image_key, created_at
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC, id ASC`

	rows, err := p.pool.Query(ctx, q, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []message.Message{}
	for rows.Next() {
		var msg message.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Text, &msg.ImageKey, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return messages, nil
}
