package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatsync/pkg/logger"
)

const secret = "test-secret"

func signToken(t *testing.T, subject string, key string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
		Name: "Ada",
	})
	s, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r.Context()) + "/" + GetDisplayName(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	h := Auth(secret, "me")(echoUser())

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signToken(t, "me", "other", time.Hour), "", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, "me", secret, -time.Hour), "", http.StatusUnauthorized},
		{"other user", "Bearer " + signToken(t, "you", secret, time.Hour), "", http.StatusForbidden},
		{"ok", "Bearer " + signToken(t, "me", secret, time.Hour), "", http.StatusOK},
		{"query token", "", signToken(t, "me", secret, time.Hour), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/v1/events"
			if tt.query != "" {
				target += "?access_token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "me/Ada", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestLoggingCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestLoggingSeesAuthenticatedUser(t *testing.T) {
	var info *requestInfo
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = r.Context().Value(requestInfoKey).(*requestInfo)
	})
	h := Logging(logger.NewNop())(Auth(secret, "me")(inner))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "me", secret, time.Hour))
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, info)
	assert.Equal(t, "me", info.userID)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestValidateParticipantID(t *testing.T) {
	for _, id := range []string{"7", "user-42", "ålesund"} {
		assert.NoError(t, ValidateParticipantID(id), id)
	}
	for _, id := range []string{"", "a.b", "a*", ">", "a b", strings.Repeat("x", 65)} {
		assert.Error(t, ValidateParticipantID(id), id)
	}
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hi", ""))
	assert.NoError(t, ValidateMessageContent("", "https://cdn.example/a.png"))
	assert.Error(t, ValidateMessageContent("", ""))
	assert.Error(t, ValidateMessageContent(strings.Repeat("x", maxContentLength+1), ""))
	assert.Error(t, ValidateMessageContent("\xff", ""))
}

func TestValidateMessageID(t *testing.T) {
	id, err := ValidateMessageID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, s := range []string{"", "0", "-1", "abc", "4.2"} {
		_, err := ValidateMessageID(s)
		assert.Error(t, err, s)
	}
}

func TestValidateEmoji(t *testing.T) {
	assert.NoError(t, ValidateEmoji("👍"))
	assert.Error(t, ValidateEmoji(" "))
	assert.Error(t, ValidateEmoji(strings.Repeat("👍", 10)))
}
