package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pairchat/internal/app/db"
	"pairchat/internal/app/store"
	"pairchat/internal/app/user"
	"pairchat/internal/configs"
	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/resp"
)

const testSecret = "test-secret"

// fakeUserStore is an in-memory store.UserStore for handler tests.
type fakeUserStore struct {
	byEmail map[string]store.Credentials
	byID    map[string]user.Identity
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: make(map[string]store.Credentials),
		byID:    make(map[string]user.Identity),
	}
}

func (f *fakeUserStore) addUser(id, email, name, password string) user.Identity {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	identity := user.Identity{ID: id, Email: email, Name: name}
	f.byEmail[email] = store.Credentials{Identity: identity, PasswordHash: string(hash)}
	f.byID[id] = identity
	return identity
}

func (f *fakeUserStore) CreateUser(_ context.Context, params store.CreateUserParams) (user.Identity, error) {
	if _, exists := f.byEmail[params.Email]; exists {
		return user.Identity{}, &pgconn.PgError{Code: "23505"}
	}

	identity := user.Identity{ID: "u-" + params.Email, Email: params.Email, Name: params.Name}
	f.byEmail[params.Email] = store.Credentials{Identity: identity, PasswordHash: params.PasswordHash}
	f.byID[identity.ID] = identity
	return identity, nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.Credentials, error) {
	creds, ok := f.byEmail[email]
	if !ok {
		return store.Credentials{}, db.ErrNotFound
	}
	return creds, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (user.Identity, error) {
	identity, ok := f.byID[id]
	if !ok {
		return user.Identity{}, db.ErrNotFound
	}
	return identity, nil
}

func testDeps(users store.UserStore) *AppDeps {
	return &AppDeps{
		Config: &configs.AppConfig{JWTSecret: testSecret},
		Users:  users,
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) (*httptest.ResponseRecorder, resp.JSONResponse) {
	t.Helper()

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler(w, r)

	var env resp.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

type authPayload struct {
	Token string        `json:"token"`
	User  user.Identity `json:"user"`
}

func decodeAuthPayload(t *testing.T, env resp.JSONResponse) authPayload {
	t.Helper()

	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)

	var payload authPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestRegisterCreatesAccountAndIssuesToken(t *testing.T) {
	users := newFakeUserStore()

	w, env := postJSON(t, HandleRegister(testDeps(users)), "/api/auth/register", RegisterInput{
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: "hunter22",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, env.Code, env.Message)

	payload := decodeAuthPayload(t, env)
	assert.Equal(t, "alice@example.com", payload.User.Email)

	parsed, err := jwt.ParseToken(payload.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, payload.User.ID, parsed.ID)

	// The stored hash verifies the original password.
	creds, err := users.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte("hunter22")))
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name     string
		input    RegisterInput
		wantCode int
	}{
		{"malformed email", RegisterInput{Email: "not-an-email", Name: "A", Password: "hunter22"}, errs.ErrInvalidEmail},
		{"empty name", RegisterInput{Email: "a@b.co", Name: "", Password: "hunter22"}, errs.ErrInvalidName},
		{"short password", RegisterInput{Email: "a@b.co", Name: "A", Password: "12345"}, errs.ErrInvalidPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, env := postJSON(t, HandleRegister(testDeps(newFakeUserStore())), "/api/auth/register", tc.input)
			assert.Equal(t, tc.wantCode, env.Code)
		})
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	users := newFakeUserStore()
	users.addUser("u-1", "alice@example.com", "Alice", "hunter22")

	_, env := postJSON(t, HandleRegister(testDeps(users)), "/api/auth/register", RegisterInput{
		Email:    "alice@example.com",
		Name:     "Imposter",
		Password: "hunter22",
	})

	assert.Equal(t, errs.ErrUserAlreadyExists, env.Code)
}

func TestLoginWithValidCredentials(t *testing.T) {
	users := newFakeUserStore()
	users.addUser("u-1", "alice@example.com", "Alice", "hunter22")

	w, env := postJSON(t, HandleLogin(testDeps(users)), "/api/auth/login", LoginInput{
		Email:    "alice@example.com",
		Password: "hunter22",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, env.Code, env.Message)

	payload := decodeAuthPayload(t, env)
	assert.Equal(t, "u-1", payload.User.ID)

	parsed, err := jwt.ParseToken(payload.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", parsed.ID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	users := newFakeUserStore()
	users.addUser("u-1", "alice@example.com", "Alice", "hunter22")

	for name, input := range map[string]LoginInput{
		"wrong password": {Email: "alice@example.com", Password: "wrong"},
		"unknown email":  {Email: "nobody@example.com", Password: "hunter22"},
	} {
		_, env := postJSON(t, HandleLogin(testDeps(users)), "/api/auth/login", input)
		assert.Equal(t, errs.ErrInvalidCredentials, env.Code, name)
	}
}

func TestSessionRequiresIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	w := httptest.NewRecorder()

	HandleSession(testDeps(newFakeUserStore()))(w, r)

	var env resp.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, errs.ErrUnauthorized, env.Code)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionReturnsFreshIdentity(t *testing.T) {
	users := newFakeUserStore()
	users.addUser("u-1", "alice@example.com", "Alice (renamed)", "hunter22")

	ctx := context.WithValue(context.Background(), jwt.ContextAuthPayloadKey, &jwt.Payload{ID: "u-1", Name: "Alice"})
	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	HandleSession(testDeps(users))(w, r)

	var env resp.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Zero(t, env.Code, env.Message)

	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var data struct {
		User user.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "Alice (renamed)", data.User.Name, "session must reflect the stored identity, not the token")
}
