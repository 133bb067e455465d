package pesapal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/platform/retry"
	"github.com/Brymax254/safari-payments/internal/tokencache"
)

func newTestTokenSource(t *testing.T, handler http.Handler) (*TokenSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ts := NewTokenSource(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
	}, tokencache.NewMemoryStore(), zap.NewNop())
	ts.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return ts, srv
}

func TestTokenReusedWithinTTL(t *testing.T) {
	var calls int32
	ts, _ := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		require.Equal(t, "/api/Auth/RequestToken", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"token":      fmt.Sprintf("tok-%d", n),
			"expiryDate": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	}))

	first, err := ts.Token(context.Background(), false)
	require.NoError(t, err)
	second, err := ts.Token(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	var calls int32
	ts, _ := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"token":      fmt.Sprintf("tok-%d", n),
			"expires_in": 3600,
		})
	}))

	now := time.Now()
	ts.now = func() time.Time { return now }

	first, err := ts.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first)

	// Step past the TTL; exactly one new token request happens.
	ts.now = func() time.Time { return now.Add(2 * time.Hour) }
	second, err := ts.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenForceRefreshBypassesCache(t *testing.T) {
	var calls int32
	ts, _ := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"token":      fmt.Sprintf("tok-%d", n),
			"expires_in": 3600,
		})
	}))

	_, err := ts.Token(context.Background(), false)
	require.NoError(t, err)

	tok, err := ts.Token(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestTokenAcceptsLegacyFieldNames(t *testing.T) {
	ts, _ := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "legacy-tok",
			"expires_in":   1800,
		})
	}))

	tok, err := ts.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "legacy-tok", tok)
}

func TestTokenRejectedCredentialsNotRetried(t *testing.T) {
	var calls int32
	ts, _ := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := ts.Token(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenMissingTokenFieldIsAuthError(t *testing.T) {
	ts, _ := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "nope"})
	}))

	_, err := ts.Token(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestTokenServerErrorsRetriedThenFail(t *testing.T) {
	var calls int32
	ts, _ := newTestTokenSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := ts.Token(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
