package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/app/db"
	"pairchat/internal/app/message"
	"pairchat/internal/app/realtime"
	"pairchat/internal/app/user"
	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/resp"
)

// messageStoreStub backs the message service with canned users and messages.
type messageStoreStub struct {
	users    map[string]user.Identity
	messages []message.Message
}

func (s *messageStoreStub) GetUserByID(_ context.Context, id string) (user.Identity, error) {
	u, ok := s.users[id]
	if !ok {
		return user.Identity{}, db.ErrNotFound
	}
	return u, nil
}

func (s *messageStoreStub) ListUsersExcept(_ context.Context, id string) ([]user.Identity, error) {
	var out []user.Identity
	for uid, u := range s.users {
		if uid != id {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *messageStoreStub) CreateMessage(_ context.Context, params message.CreateMessageParams) (message.Message, error) {
	msg := message.Message{
		ID:          "m-created",
		SenderID:    params.SenderID,
		RecipientID: params.RecipientID,
		Text:        params.Text,
		ImageKey:    params.ImageKey,
		CreatedAt:   time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *messageStoreStub) ListMessagesBetween(_ context.Context, _, _ string) ([]message.Message, error) {
	return s.messages, nil
}

type relayStub struct{ delivered int }

func (r *relayStub) Send(string, realtime.Event) int { return r.delivered }

type imageStoreStub struct{}

func (imageStoreStub) Put(context.Context, string, string, []byte) error { return nil }

func (imageStoreStub) Delete(context.Context, string) error { return nil }

func messagingDeps(stub *messageStoreStub) *AppDeps {
	deps := testDeps(newFakeUserStore())
	deps.Messages = message.NewService(stub, &relayStub{delivered: 1}, imageStoreStub{})
	return deps
}

// authedRequest builds a request carrying an identity and the chi peerId
// route parameter.
func authedRequest(method, target, selfID, peerID string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}

	ctx := r.Context()
	if selfID != "" {
		ctx = context.WithValue(ctx, jwt.ContextAuthPayloadKey, &jwt.Payload{ID: selfID})
	}
	if peerID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("peerId", peerID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}

	return r.WithContext(ctx)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) resp.JSONResponse {
	t.Helper()
	var env resp.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestListUsersRequiresIdentity(t *testing.T) {
	stub := &messageStoreStub{users: map[string]user.Identity{}}
	w := httptest.NewRecorder()

	HandleListUsers(messagingDeps(stub))(w, authedRequest(http.MethodGet, "/api/users", "", "", nil))

	assert.Equal(t, errs.ErrUnauthorized, decodeEnvelope(t, w).Code)
}

func TestListUsersExcludesCaller(t *testing.T) {
	stub := &messageStoreStub{users: map[string]user.Identity{
		"alice": {ID: "alice"},
		"bob":   {ID: "bob"},
	}}
	w := httptest.NewRecorder()

	HandleListUsers(messagingDeps(stub))(w, authedRequest(http.MethodGet, "/api/users", "alice", "", nil))

	env := decodeEnvelope(t, w)
	require.Zero(t, env.Code, env.Message)

	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var data struct {
		Users []user.Identity `json:"users"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Len(t, data.Users, 1)
	assert.Equal(t, "bob", data.Users[0].ID)
}

func TestGetMessagesWithUnknownPeer(t *testing.T) {
	stub := &messageStoreStub{users: map[string]user.Identity{"alice": {ID: "alice"}}}
	w := httptest.NewRecorder()

	HandleGetMessages(messagingDeps(stub))(w, authedRequest(http.MethodGet, "/api/messages/ghost", "alice", "ghost", nil))

	assert.Equal(t, errs.ErrUserNotFound, decodeEnvelope(t, w).Code)
}

func TestGetMessagesReturnsHistory(t *testing.T) {
	stub := &messageStoreStub{
		users: map[string]user.Identity{"alice": {ID: "alice"}, "bob": {ID: "bob"}},
		messages: []message.Message{
			{ID: "m-1", SenderID: "alice", RecipientID: "bob", Text: "hi"},
		},
	}
	w := httptest.NewRecorder()

	HandleGetMessages(messagingDeps(stub))(w, authedRequest(http.MethodGet, "/api/messages/bob", "alice", "bob", nil))

	env := decodeEnvelope(t, w)
	require.Zero(t, env.Code, env.Message)

	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var data struct {
		Messages []message.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "m-1", data.Messages[0].ID)
}

func TestSendMessagePersistsAndReturnsRecord(t *testing.T) {
	stub := &messageStoreStub{users: map[string]user.Identity{"alice": {ID: "alice"}, "bob": {ID: "bob"}}}
	body, _ := json.Marshal(message.Content{Text: "hello"})
	w := httptest.NewRecorder()

	HandleSendMessage(messagingDeps(stub))(w, authedRequest(http.MethodPost, "/api/messages/bob", "alice", "bob", body))

	env := decodeEnvelope(t, w)
	require.Zero(t, env.Code, env.Message)

	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var data struct {
		Message message.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "m-created", data.Message.ID)
	assert.Equal(t, "alice", data.Message.SenderID)

	require.Len(t, stub.messages, 1)
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	stub := &messageStoreStub{users: map[string]user.Identity{"alice": {ID: "alice"}, "bob": {ID: "bob"}}}
	body, _ := json.Marshal(message.Content{})
	w := httptest.NewRecorder()

	HandleSendMessage(messagingDeps(stub))(w, authedRequest(http.MethodPost, "/api/messages/bob", "alice", "bob", body))

	assert.Equal(t, errs.ErrMessageEmpty, decodeEnvelope(t, w).Code)
}

func TestSendMessageRejectsUnknownFields(t *testing.T) {
	stub := &messageStoreStub{users: map[string]user.Identity{"alice": {ID: "alice"}, "bob": {ID: "bob"}}}
	w := httptest.NewRecorder()

	body := []byte(`{"text":"hi","evil":true}`)
	HandleSendMessage(messagingDeps(stub))(w, authedRequest(http.MethodPost, "/api/messages/bob", "alice", "bob", body))

	assert.Equal(t, errs.ErrInvalidJSONFormat, decodeEnvelope(t, w).Code)
}
