/*
Package client is the Go SDK for a pairchat server. It holds the authenticated
session, maintains the realtime connection with bounded reconnection, tracks
the online-user snapshot, and manages per-peer conversation state with
optimistic sends.

This file contains the HTTP API client.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pairchat/internal/app/message"
	"pairchat/internal/app/user"
)

// APIError is a business error reported by the server.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// API is the HTTP client for the server's REST surface.
type API struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPI constructs a client for the server at baseURL (e.g. "http://localhost:8080").
func NewAPI(baseURL string) *API {
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken installs the session token used on subsequent requests.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Token returns the current session token, empty when logged out.
func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// envelope mirrors the server's JSON response structure.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (a *API) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	if env.Code != 0 {
		return &APIError{Code: env.Code, Message: env.Message}
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode payload: %w", method, path, err)
		}
	}

	return nil
}

type authResult struct {
	Token string        `json:"token"`
	User  user.Identity `json:"user"`
}

// Register creates an account and returns the identity plus session token.
func (a *API) Register(ctx context.Context, email, name, password string) (user.Identity, string, error) {
	var result authResult
	err := a.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"name":     name,
		"password": password,
	}, &result)
	if err != nil {
		return user.Identity{}, "", err
	}
	return result.User, result.Token, nil
}

// Login verifies credentials and returns the identity plus session token.
func (a *API) Login(ctx context.Context, email, password string) (user.Identity, string, error) {
	var result authResult
	err := a.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return user.Identity{}, "", err
	}
	return result.User, result.Token, nil
}

// Users returns every known user except the caller.
func (a *API) Users(ctx context.Context) ([]user.Identity, error) {
	var result struct {
		Users []user.Identity `json:"users"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/users", nil, &result); err != nil {
		return nil, err
	}
	return result.Users, nil
}

// Messages returns the conversation history with the peer, oldest first.
func (a *API) Messages(ctx context.Context, peerID string) ([]message.Message, error) {
	var result struct {
		Messages []message.Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/"+peerID, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// SendMessage submits a message to the peer and returns the persisted record.
func (a *API) SendMessage(ctx context.Context, peerID string, content message.Content) (message.Message, error) {
	var result struct {
		Message message.Message `json:"message"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/messages/"+peerID, content, &result); err != nil {
		return message.Message{}, err
	}
	return result.Message, nil
}

// ImageURL exchanges a message image key for a short-lived download URL.
func (a *API) ImageURL(ctx context.Context, key string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/images/presign?key="+url.QueryEscape(key), nil, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}
