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

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/platform/retry"
	"github.com/Brymax254/safari-payments/internal/tokencache"
)

// fakeProvider simulates the Pesapal API: tokens are issued sequentially and
// requests carrying a stale token are rejected with 401.
type fakeProvider struct {
	mux        *http.ServeMux
	authCalls  int32
	validToken atomic.Value // string

	registerIPN func(w http.ResponseWriter, r *http.Request)
	submitOrder func(w http.ResponseWriter, r *http.Request)
	getStatus   func(w http.ResponseWriter, r *http.Request)
}

func newFakeProvider() *fakeProvider {
	f := &fakeProvider{mux: http.NewServeMux()}
	f.validToken.Store("")

	f.mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.authCalls, 1)
		tok := fmt.Sprintf("tok-%d", n)
		f.validToken.Store(tok)
		json.NewEncoder(w).Encode(map[string]any{"token": tok, "expires_in": 3600})
	})
	f.mux.HandleFunc("/api/URLSetup/RegisterIPN", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.registerIPN(w, r)
	}))
	f.mux.HandleFunc("/api/Transactions/SubmitOrderRequest", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.submitOrder(w, r)
	}))
	f.mux.HandleFunc("/api/Transactions/GetTransactionStatus", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.getStatus(w, r)
	}))
	return f
}

func (f *fakeProvider) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := "Bearer " + f.validToken.Load().(string)
		if f.validToken.Load().(string) == "" || r.Header.Get("Authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		NotificationID: "ipn-1",
		CallbackURL:    "https://tours.example.com/payments/callback",
	}
	tokens := NewTokenSource(cfg, tokencache.NewMemoryStore(), zap.NewNop())
	tokens.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	c := NewClient(cfg, tokens, zap.NewNop())
	c.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return c
}

func TestRegisterIPNRetriesTransientFailures(t *testing.T) {
	f := newFakeProvider()
	var attempts int32
	f.registerIPN = func(w http.ResponseWriter, r *http.Request) {
		var req registerIPNRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ipn-1", req.IPNID)
		assert.Equal(t, "POST", req.IPNNotificationType)

		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ipn_id": "ipn-1", "url": req.URL})
	}

	c := newTestClient(t, f)
	id, err := c.RegisterIPN(context.Background(), "https://tours.example.com/payments/ipn")
	require.NoError(t, err)
	assert.Equal(t, "ipn-1", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestSubmitOrderRefreshesTokenOnce(t *testing.T) {
	f := newFakeProvider()
	var orders int32
	f.submitOrder = func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&orders, 1)
		var req submitOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "PAY-42", req.ID)
		assert.Equal(t, "1500.00", req.Amount)
		assert.Equal(t, "KES", req.Currency)
		assert.Equal(t, "ipn-1", req.NotificationID)
		assert.Equal(t, "KE", req.BillingAddress.CountryCode)

		json.NewEncoder(w).Encode(map[string]any{
			"order_tracking_id": "TRK123",
			"redirect_url":      "https://pay.pesapal.com/iframe/TRK123",
		})
	}

	c := newTestClient(t, f)

	// Seed a token, then invalidate it provider-side so the first order
	// attempt runs with a stale credential.
	_, err := c.tokens.Token(context.Background(), false)
	require.NoError(t, err)
	f.validToken.Store("rotated-away")

	res, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		MerchantRef:    "PAY-42",
		Amount:         decimal.NewFromInt(1500),
		Currency:       "KES",
		Description:    "Safari tour",
		PayerEmail:     "a@b.com",
		PayerPhone:     "+254700000001",
		PayerFirstName: "Asha",
		PayerLastName:  "Mwangi",
	})
	require.NoError(t, err)

	assert.Equal(t, "TRK123", res.TrackingID)
	assert.Equal(t, "https://pay.pesapal.com/iframe/TRK123", res.RedirectURL)
	assert.Equal(t, "PAY-42", res.MerchantRef)
	// One failed attempt with the stale token, one success after refresh.
	assert.Equal(t, int32(1), atomic.LoadInt32(&orders))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.authCalls))
}

func TestSubmitOrderProviderRejectionNotRetried(t *testing.T) {
	f := newFakeProvider()
	var orders int32
	f.submitOrder = func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&orders, 1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid amount"})
	}

	c := newTestClient(t, f)
	_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		MerchantRef: "PAY-7",
		Amount:      decimal.NewFromInt(100),
		Currency:    "KES",
	})

	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&orders))
}

func TestQueryStatusMapsResponse(t *testing.T) {
	f := newFakeProvider()
	f.getStatus = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TRK123", r.URL.Query().Get("orderTrackingId"))
		json.NewEncoder(w).Encode(map[string]any{
			"payment_method":             "MpesaKE",
			"amount":                     1500.00,
			"created_date":               "2024-03-01T12:30:00Z",
			"payment_status_description": "Completed",
			"currency":                   "KES",
		})
	}

	c := newTestClient(t, f)
	vs, err := c.QueryStatus(context.Background(), "TRK123")
	require.NoError(t, err)

	assert.True(t, vs.Mapped)
	assert.Equal(t, domain.StatusSuccess, vs.State)
	assert.Equal(t, "Completed", vs.RawStatus)
	assert.Equal(t, "MpesaKE", vs.Channel)
	assert.Equal(t, "KES", vs.Currency)
	assert.True(t, decimal.NewFromInt(1500).Equal(vs.Amount))
	assert.Equal(t, 2024, vs.PaidAt.Year())
	assert.NotEmpty(t, vs.Raw)
}

func TestQueryStatusUnknownTrackingIDNotRetried(t *testing.T) {
	f := newFakeProvider()
	var attempts int32
	f.getStatus = func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}

	c := newTestClient(t, f)
	_, err := c.QueryStatus(context.Background(), "nonexistent-id")

	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestQueryStatusPendingIsUnmapped(t *testing.T) {
	f := newFakeProvider()
	f.getStatus = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"payment_status_description": "Pending",
			"currency":                   "KES",
		})
	}

	c := newTestClient(t, f)
	vs, err := c.QueryStatus(context.Background(), "TRK999")
	require.NoError(t, err)
	assert.False(t, vs.Mapped)
}
