package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/platform/retry"
)

// Config holds the Pesapal connection settings.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	NotificationID string // registered IPN id, passed with every order
	CallbackURL    string // default browser redirect target
	Timeout        time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

// Client is a stateless wrapper over the Pesapal v3 endpoints. It implements
// domain.Gateway.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	tokens         *TokenSource
	notificationID string
	callbackURL    string
	policy         retry.Policy
	logger         *zap.Logger
}

// NewClient creates a Pesapal client using the given token source.
func NewClient(cfg Config, tokens *TokenSource, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.timeout()},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		tokens:         tokens,
		notificationID: cfg.NotificationID,
		callbackURL:    cfg.CallbackURL,
		policy:         retry.DefaultPolicy,
		logger:         logger,
	}
}

// Name implements domain.Gateway.
func (c *Client) Name() domain.Provider {
	return domain.ProviderPesapal
}

type registerIPNRequest struct {
	URL                 string `json:"url"`
	IPNNotificationType string `json:"ipn_notification_type"`
	IPNID               string `json:"ipn_id,omitempty"`
}

type registerIPNResponse struct {
	IPNID string `json:"ipn_id"`
	URL   string `json:"url"`
}

// RegisterIPN registers (or, when a notification id is already configured,
// confirms) the IPN URL with Pesapal and returns the notification id. The
// operation is idempotent and retried on transient failures.
func (c *Client) RegisterIPN(ctx context.Context, ipnURL string) (string, error) {
	payload := registerIPNRequest{
		URL:                 ipnURL,
		IPNNotificationType: "POST",
		IPNID:               c.notificationID,
	}

	var out registerIPNResponse
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", nil, payload, &out)
	})
	if err != nil {
		return "", providerErr(err, "IPN registration failed", "IPN_REGISTER_ERROR")
	}
	if out.IPNID == "" {
		return "", domain.NewPaymentError(domain.ErrProvider,
			"IPN registration response missing ipn_id", "IPN_MALFORMED")
	}
	return out.IPNID, nil
}

type billingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	CountryCode  string `json:"country_code"`
}

type submitOrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         string         `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress billingAddress `json:"billing_address"`
}

type submitOrderResponse struct {
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
	Status          string `json:"status"`
}

// SubmitOrder creates an order and returns the redirect URL plus the
// provider tracking id. The call is not retried here: duplicate submission
// protection belongs to the orchestrator, which knows whether a tracking id
// already exists for the reference.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = c.callbackURL
	}

	payload := submitOrderRequest{
		ID:             req.MerchantRef,
		Currency:       req.Currency,
		Amount:         req.Amount.StringFixed(2),
		Description:    req.Description,
		CallbackURL:    callbackURL,
		NotificationID: c.notificationID,
		BillingAddress: billingAddress{
			EmailAddress: req.PayerEmail,
			PhoneNumber:  req.PayerPhone,
			FirstName:    req.PayerFirstName,
			LastName:     req.PayerLastName,
			CountryCode:  "KE",
		},
	}

	// Single attempt: the orchestrator decides whether a resubmission is
	// safe, and distinguishes transport failures from provider rejections
	// by the error type.
	var out submitOrderResponse
	err := retry.None.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", nil, payload, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("order submission: %w", err)
	}
	if out.OrderTrackingID == "" || out.RedirectURL == "" {
		return nil, domain.NewPaymentError(domain.ErrProvider,
			"order response missing redirect_url or order_tracking_id", "ORDER_MALFORMED")
	}

	return &domain.OrderResult{
		RedirectURL: out.RedirectURL,
		TrackingID:  out.OrderTrackingID,
		MerchantRef: req.MerchantRef,
	}, nil
}

type transactionStatusResponse struct {
	PaymentMethod            string      `json:"payment_method"`
	Amount                   json.Number `json:"amount"`
	CreatedDate              string      `json:"created_date"`
	ConfirmationCode         string      `json:"confirmation_code"`
	PaymentStatusDescription string      `json:"payment_status_description"`
	Currency                 string      `json:"currency"`
	Description              string      `json:"description"`
}

// QueryStatus fetches the authoritative transaction status for a tracking id.
// Transient failures are retried; an unknown tracking id is reported, not
// retried.
func (c *Client) QueryStatus(ctx context.Context, trackingID string) (*domain.VerifiedStatus, error) {
	query := url.Values{"orderTrackingId": {trackingID}}

	var raw json.RawMessage
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, "/api/Transactions/GetTransactionStatus", query, nil, &raw)
	})
	if err != nil {
		return nil, providerErr(err, "status query failed for "+trackingID, "STATUS_QUERY_ERROR")
	}

	var ts transactionStatusResponse
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil, domain.NewPaymentError(domain.ErrProvider,
			"malformed status response", "STATUS_MALFORMED")
	}

	amount := decimal.Zero
	if ts.Amount != "" {
		if d, err := decimal.NewFromString(ts.Amount.String()); err == nil {
			amount = d
		}
	}

	var paidAt time.Time
	if ts.CreatedDate != "" {
		if t, err := time.Parse(time.RFC3339, ts.CreatedDate); err == nil {
			paidAt = t
		}
	}

	state, mapped := MapStatus(ts.PaymentStatusDescription)
	return &domain.VerifiedStatus{
		RawStatus: ts.PaymentStatusDescription,
		State:     state,
		Mapped:    mapped,
		Amount:    amount,
		Currency:  ts.Currency,
		PaidAt:    paidAt,
		Channel:   ts.PaymentMethod,
		Raw:       raw,
	}, nil
}

// call performs one authenticated request. A rejected token is refreshed and
// the request repeated once before the auth failure propagates. Transient
// failures (network, 5xx) come back as plain errors so retry policies act on
// them; everything else is permanent.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	token, err := c.tokens.Token(ctx, false)
	if err != nil {
		return retry.Permanent(err)
	}

	status, err := c.roundTrip(ctx, method, path, query, payload, token, out)
	if err == nil && status == http.StatusUnauthorized {
		c.logger.Info("token rejected, refreshing once", zap.String("path", path))
		// Drop the shared cached credential so other instances stop using
		// it too, then fetch a fresh one.
		if ierr := c.tokens.Invalidate(ctx); ierr != nil {
			c.logger.Warn("credential invalidation failed", zap.Error(ierr))
		}
		token, err = c.tokens.Token(ctx, true)
		if err != nil {
			return retry.Permanent(err)
		}
		status, err = c.roundTrip(ctx, method, path, query, payload, token, out)
	}
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return retry.Permanent(domain.NewPaymentError(domain.ErrAuth,
			"request rejected after token refresh", "AUTH_REJECTED"))
	}
	return nil
}

// roundTrip executes the HTTP exchange. It returns the status code for 401
// so call can refresh; other non-2xx codes are classified here.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload any, token string, out any) (int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, retry.Permanent(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, nil
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.StatusCode, retry.Permanent(domain.NewPaymentError(domain.ErrProvider,
			fmt.Sprintf("%s %s returned status %d: %s", method, path, resp.StatusCode, truncate(raw, 256)),
			"PROVIDER_REJECTED"))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, retry.Permanent(domain.NewPaymentError(domain.ErrProvider,
				"malformed provider response", "PROVIDER_MALFORMED"))
		}
	}
	return resp.StatusCode, nil
}

// providerErr ensures every failure leaving the client is a coded
// PaymentError; transient exhaustion gets wrapped as a provider error.
func providerErr(err error, message, code string) error {
	var perr *domain.PaymentError
	if errors.As(err, &perr) {
		return err
	}
	return domain.NewPaymentError(domain.ErrProvider, message+": "+err.Error(), code)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
