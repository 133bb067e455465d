package bookingcore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
)

func testEvent() domain.Event {
	return domain.Event{
		Type:        domain.EventPaymentConfirmed,
		MerchantRef: "PAY-AAA111",
		TrackingID:  "track-1",
		Provider:    domain.ProviderPesapal,
		Status:      domain.StatusSuccess,
		Amount:      decimal.RequireFromString("2500"),
		Currency:    "KES",
		Channel:     "MPESA",
		OccurredAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNotifyPaymentEvent(t *testing.T) {
	var got paymentEventRequest
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/payments/webhook-callback/", r.URL.Path)
		gotKey = r.Header.Get("X-Internal-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "internal-key", zap.NewNop())
	require.NoError(t, client.NotifyPaymentEvent(context.Background(), testEvent()))

	assert.Equal(t, "internal-key", gotKey)
	assert.Equal(t, "PAY-AAA111", got.MerchantRef)
	assert.Equal(t, "SUCCESS", got.Status)
	assert.Equal(t, "2500.00", got.Amount)
	assert.Equal(t, "MPESA", got.Channel)
}

func TestNotifyPaymentEventServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "internal-key", zap.NewNop())
	err := client.NotifyPaymentEvent(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSubscriberSwallowsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "internal-key", zap.NewNop())
	assert.NoError(t, client.Subscriber()(testEvent()))
}
