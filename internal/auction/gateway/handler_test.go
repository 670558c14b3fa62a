package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newTestHandler() *WebSocketHandler {
	m := newTestManager(newFakeStore(), clockwork.NewFakeClock())
	return NewWebSocketHandler(m, testSecret)
}

func TestAuthenticateQueryToken(t *testing.T) {
	h := newTestHandler()
	userID := uuid.New()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   userID.String(),
		"email": "bidder@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest("GET", "/ws/auctions?token="+token, nil)
	gotID, gotEmail, err := h.authenticate(r)
	require.NoError(t, err)
	require.Equal(t, userID, gotID)
	require.Equal(t, "bidder@example.com", gotEmail)
}

func TestAuthenticateBearerHeader(t *testing.T) {
	h := newTestHandler()
	userID := uuid.New()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest("GET", "/ws/auctions", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	gotID, gotEmail, err := h.authenticate(r)
	require.NoError(t, err)
	require.Equal(t, userID, gotID)
	require.Empty(t, gotEmail)
}

func TestAuthenticateRejections(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name  string
		token string
	}{
		{"missing_token", ""},
		{"garbage_token", "not.a.jwt"},
		{
			"wrong_secret",
			signToken(t, "other-secret", jwt.MapClaims{
				"sub": uuid.New().String(),
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			"expired",
			signToken(t, testSecret, jwt.MapClaims{
				"sub": uuid.New().String(),
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			"missing_sub",
			signToken(t, testSecret, jwt.MapClaims{
				"email": "bidder@example.com",
				"exp":   time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			"sub_not_uuid",
			signToken(t, testSecret, jwt.MapClaims{
				"sub": "user-42",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws/auctions", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			_, _, err := h.authenticate(r)
			require.Error(t, err)
		})
	}
}

func TestHandleWebSocketUnauthorized(t *testing.T) {
	h := newTestHandler()

	r := httptest.NewRequest("GET", "/ws/auctions", nil)
	w := httptest.NewRecorder()
	h.HandleWebSocket(w, r)
	require.Equal(t, 401, w.Code)
}
