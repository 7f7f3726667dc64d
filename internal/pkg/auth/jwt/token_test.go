package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseRoundTrip(t *testing.T) {
	payload := &Payload{ID: "u-1", Email: "alice@example.com", Name: "Alice"}

	token, err := GenerateToken(payload, testSecret, time.Minute)
	require.NoError(t, err)

	parsed, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", parsed.ID)
	assert.Equal(t, "alice@example.com", parsed.Email)
	assert.Equal(t, TokenIssuer, parsed.Issuer)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u-1"}, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u-1"}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	assert.Error(t, err)
}

func TestMiddlewareInjectsPayload(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u-1", Name: "Alice"}, testSecret, time.Minute)
	require.NoError(t, err)

	var got *Payload
	handler := IdentityExtractorMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPayloadFromContext(r)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.ID)
}

func TestMiddlewareLeavesAnonymousRequestsAlone(t *testing.T) {
	for name, header := range map[string]string{
		"no header":     "",
		"not bearer":    "Basic abc",
		"invalid token": "Bearer garbage",
	} {
		var got *Payload
		called := false
		handler := IdentityExtractorMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			got = GetPayloadFromContext(r)
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		handler.ServeHTTP(httptest.NewRecorder(), r)

		assert.True(t, called, name)
		assert.Nil(t, got, name)
	}
}
