// Package paystack implements the domain.Gateway interface against the
// Paystack transaction API (initialize + verify). Unlike Pesapal there is no
// short-lived token: every call is authenticated with the static secret key.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/platform/retry"
)

// Config holds the Paystack connection settings.
type Config struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Timeout     time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

// Client is a stateless wrapper over the Paystack transaction endpoints.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
	policy      retry.Policy
	logger      *zap.Logger
}

// NewClient creates a Paystack client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.timeout()},
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		policy:      retry.DefaultPolicy,
		logger:      logger,
	}
}

// Name implements domain.Gateway.
func (c *Client) Name() domain.Provider {
	return domain.ProviderPaystack
}

type initializeRequest struct {
	Amount      int64             `json:"amount"` // minor units
	Email       string            `json:"email"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency"`
	CallbackURL string            `json:"callback_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string      `json:"status"`
	Reference string      `json:"reference"`
	Amount    json.Number `json:"amount"` // minor units
	Currency  string      `json:"currency"`
	PaidAt    string      `json:"paid_at"`
	Channel   string      `json:"channel"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// MinorUnits converts a decimal amount to the integer minor-unit
// representation Paystack expects (KES 1500.00 -> 150000).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// SubmitOrder initializes a Paystack transaction. The merchant reference is
// also the tracking id: Paystack verifies transactions by reference.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = c.callbackURL
	}

	payload := initializeRequest{
		Amount:      MinorUnits(req.Amount),
		Email:       req.PayerEmail,
		Reference:   req.MerchantRef,
		Currency:    req.Currency,
		CallbackURL: callbackURL,
		Metadata: map[string]string{
			"customer_name":  strings.TrimSpace(req.PayerFirstName + " " + req.PayerLastName),
			"customer_phone": req.PayerPhone,
			"description":    req.Description,
		},
	}

	// Single attempt; transport failures stay plain errors so the
	// orchestrator can decide whether a resubmission is safe.
	var data initializeData
	err := retry.None.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, "/transaction/initialize", payload, &data)
	})
	if err != nil {
		return nil, fmt.Errorf("transaction initialize: %w", err)
	}
	if data.AuthorizationURL == "" {
		return nil, domain.NewPaymentError(domain.ErrProvider,
			"initialize response missing authorization_url", "ORDER_MALFORMED")
	}

	return &domain.OrderResult{
		RedirectURL: data.AuthorizationURL,
		TrackingID:  req.MerchantRef,
		MerchantRef: req.MerchantRef,
	}, nil
}

// QueryStatus verifies a transaction by reference. Transient failures are
// retried; an unknown reference is reported, not retried.
func (c *Client) QueryStatus(ctx context.Context, trackingID string) (*domain.VerifiedStatus, error) {
	var data verifyData
	var raw json.RawMessage

	err := c.policy.Do(ctx, func(ctx context.Context) error {
		raw = nil
		return c.callRaw(ctx, http.MethodGet, "/transaction/verify/"+trackingID, nil, &raw)
	})
	if err != nil {
		return nil, providerErr(err, "transaction verify failed for "+trackingID, "STATUS_QUERY_ERROR")
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domain.NewPaymentError(domain.ErrProvider,
			"malformed verify response", "STATUS_MALFORMED")
	}

	amount := decimal.Zero
	if data.Amount != "" {
		if minor, err := decimal.NewFromString(data.Amount.String()); err == nil {
			amount = minor.Div(decimal.NewFromInt(100))
		}
	}

	var paidAt time.Time
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			paidAt = t
		}
	}

	state, mapped := mapStatus(data.Status)
	return &domain.VerifiedStatus{
		RawStatus: data.Status,
		State:     state,
		Mapped:    mapped,
		Amount:    amount,
		Currency:  data.Currency,
		PaidAt:    paidAt,
		Channel:   data.Channel,
		Raw:       raw,
	}, nil
}

// mapStatus translates the Paystack status vocabulary. Non-terminal statuses
// (pending, ongoing, abandoned, ...) stay unmapped so the payment waits for
// the next notification.
func mapStatus(raw string) (domain.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return domain.StatusSuccess, true
	case "failed":
		return domain.StatusFailed, true
	case "reversed":
		return domain.StatusCancelled, true
	default:
		return "", false
	}
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var raw json.RawMessage
	if err := c.callRaw(ctx, method, path, payload, &raw); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return domain.NewPaymentError(domain.ErrProvider,
				"malformed provider response", "PROVIDER_MALFORMED")
		}
	}
	return nil
}

// callRaw performs one authenticated exchange and unwraps the Paystack
// response envelope into its data payload.
func (c *Client) callRaw(ctx context.Context, method, path string, payload any, out *json.RawMessage) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return retry.Permanent(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return retry.Permanent(domain.NewPaymentError(domain.ErrAuth,
			"secret key rejected", "AUTH_REJECTED"))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return retry.Permanent(domain.NewPaymentError(domain.ErrProvider,
			"malformed provider response", "PROVIDER_MALFORMED"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return retry.Permanent(domain.NewPaymentError(domain.ErrProvider,
			fmt.Sprintf("%s %s rejected: %s", method, path, env.Message),
			"PROVIDER_REJECTED"))
	}

	*out = env.Data
	return nil
}

func providerErr(err error, message, code string) error {
	var perr *domain.PaymentError
	if errors.As(err, &perr) {
		return err
	}
	return domain.NewPaymentError(domain.ErrProvider, message+": "+err.Error(), code)
}
