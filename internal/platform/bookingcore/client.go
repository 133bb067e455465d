// Package bookingcore notifies the booking backend when a payment settles.
package bookingcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
)

// Client pushes confirmed and failed payment outcomes to the booking core
// API so it can mark bookings paid and send receipts.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a booking core client.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// paymentEventRequest is the JSON body sent to the booking core webhook.
type paymentEventRequest struct {
	MerchantRef string `json:"merchant_ref"`
	TrackingID  string `json:"tracking_id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Channel     string `json:"channel"`
	OccurredAt  string `json:"occurred_at"`
}

// NotifyPaymentEvent sends a payment outcome to the booking core. The core
// handles marking the booking, issuing the receipt and customer messaging.
func (c *Client) NotifyPaymentEvent(ctx context.Context, evt domain.Event) error {
	url := fmt.Sprintf("%s/api/v1/payments/webhook-callback/", c.baseURL)

	payload := paymentEventRequest{
		MerchantRef: evt.MerchantRef,
		TrackingID:  evt.TrackingID,
		Provider:    string(evt.Provider),
		Status:      string(evt.Status),
		Amount:      evt.Amount.StringFixed(2),
		Currency:    evt.Currency,
		Channel:     evt.Channel,
		OccurredAt:  evt.OccurredAt.Format(time.RFC3339),
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Internal-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("booking core returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("notified booking core",
		zap.String("merchant_ref", evt.MerchantRef),
		zap.String("status", string(evt.Status)))
	return nil
}

// Subscriber adapts NotifyPaymentEvent to the event bus handler signature.
// Delivery failures are logged, never propagated: the payment outcome is
// already durable and the booking core reconciles on its side.
func (c *Client) Subscriber() func(evt domain.Event) error {
	return func(evt domain.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := c.NotifyPaymentEvent(ctx, evt); err != nil {
			c.logger.Error("booking core notification failed",
				zap.String("merchant_ref", evt.MerchantRef),
				zap.Error(err))
		}
		return nil
	}
}
