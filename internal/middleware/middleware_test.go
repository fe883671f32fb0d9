package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMemberID(t *testing.T) {
	req := require.New(t)
	req.Empty(GetMemberID(context.Background()))
	ctx := context.WithValue(context.Background(), MemberIDKey, "m-1")
	req.Equal("m-1", GetMemberID(ctx))
}

func TestRecoverJSON(t *testing.T) {
	req := require.New(t)
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	req.Equal(http.StatusInternalServerError, rec.Code)
	req.Contains(rec.Body.String(), "internal server error")
	req.Contains(rec.Header().Get("Content-Type"), "application/json")
}

func TestSecureHeaders(t *testing.T) {
	req := require.New(t)
	h := SecureHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	req.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	req.Equal("DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRateLimiterWindow(t *testing.T) {
	req := require.New(t)
	rl := newRateLimiter(2, 50*time.Millisecond)
	req.True(rl.allow("k"))
	req.True(rl.allow("k"))
	req.False(rl.allow("k"))
	// Другой ключ не задет.
	req.True(rl.allow("other"))

	time.Sleep(60 * time.Millisecond)
	req.True(rl.allow("k"))
}

func TestTrustedHeaderIdentity(t *testing.T) {
	req := require.New(t)
	var got string
	h := TrustedHeaderIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetMemberID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Member-Id", "m-42")
	h.ServeHTTP(httptest.NewRecorder(), r)
	req.Equal("m-42", got)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)
}
