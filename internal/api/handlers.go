// Package api contains the HTTP handlers and routing for the payment service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/payment"
	"github.com/Brymax254/safari-payments/internal/platform/paystack"
)

// Handler contains the HTTP handlers for the payment API.
type Handler struct {
	paymentService *payment.Service
	reconciler     *payment.Reconciler
	paystackSecret string
	logger         *zap.Logger
}

// NewHandler creates an API handler.
func NewHandler(paymentService *payment.Service, reconciler *payment.Reconciler, paystackSecret string, logger *zap.Logger) *Handler {
	return &Handler{
		paymentService: paymentService,
		reconciler:     reconciler,
		paystackSecret: paystackSecret,
		logger:         logger,
	}
}

// CheckoutRequest represents the JSON body for the checkout endpoint.
type CheckoutRequest struct {
	MerchantRef    string          `json:"merchant_ref"`
	Provider       string          `json:"provider"` // PESAPAL (default) or PAYSTACK
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description" binding:"required"`
	PayerEmail     string          `json:"payer_email" binding:"required,email"`
	PayerPhone     string          `json:"payer_phone"`
	PayerFirstName string          `json:"payer_first_name"`
	PayerLastName  string          `json:"payer_last_name"`
}

// CheckoutResponse represents the response from the checkout endpoint.
type CheckoutResponse struct {
	Success     bool   `json:"success"`
	MerchantRef string `json:"merchant_ref"`
	TrackingID  string `json:"tracking_id"`
	RedirectURL string `json:"redirect_url"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// CreateCheckout handles POST /api/v1/payments/checkout.
// Creates the payment, submits the order to the provider, and returns the
// redirect URL for the payer.
func (h *Handler) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	result, err := h.paymentService.StartPayment(c.Request.Context(), payment.StartRequest{
		MerchantRef:    req.MerchantRef,
		Provider:       req.Provider,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
		PayerEmail:     req.PayerEmail,
		PayerPhone:     req.PayerPhone,
		PayerFirstName: req.PayerFirstName,
		PayerLastName:  req.PayerLastName,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		Success:     true,
		MerchantRef: result.MerchantRef,
		TrackingID:  result.TrackingID,
		RedirectURL: result.RedirectURL,
	})
}

// PaymentResponse is the public view of a payment.
type PaymentResponse struct {
	MerchantRef   string `json:"merchant_ref"`
	TrackingID    string `json:"tracking_id,omitempty"`
	Provider      string `json:"provider"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Channel       string `json:"channel,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	ConfirmedAt   string `json:"confirmed_at,omitempty"`
}

// GetPayment handles GET /api/v1/payments/:reference.
func (h *Handler) GetPayment(c *gin.Context) {
	p, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	resp := PaymentResponse{
		MerchantRef:   p.MerchantRef,
		TrackingID:    p.TrackingID,
		Provider:      string(p.Provider),
		Amount:        p.Amount.StringFixed(2),
		Currency:      p.Currency,
		Status:        string(p.Status),
		Channel:       p.Channel,
		FailureReason: p.FailureReason,
	}
	if p.ConfirmedAt != nil {
		resp.ConfirmedAt = p.ConfirmedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCallback handles GET /payments/callback.
// Pesapal redirects the payer's browser here after checkout. The tracking id
// triggers a reconciliation; the response reflects whatever status the
// provider verified, not what the browser claims.
func (h *Handler) HandleCallback(c *gin.Context) {
	trackingID := c.Query("OrderTrackingId")
	merchantRef := c.Query("OrderMerchantReference")
	if trackingID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "OrderTrackingId is required",
			Code:    "MISSING_TRACKING_ID",
		})
		return
	}

	if err := h.reconciler.HandleNotification(c.Request.Context(), trackingID, "", "callback"); err != nil {
		h.logger.Error("callback reconciliation failed",
			zap.String("tracking_id", trackingID), zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Success: false,
			Error:   "Could not verify payment status",
			Code:    "VERIFY_FAILED",
		})
		return
	}

	p, err := h.paymentService.GetPayment(c.Request.Context(), merchantRef)
	if err != nil {
		// Fall back to a bare acknowledgment when the reference is absent.
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"merchant_ref": p.MerchantRef,
		"status":       string(p.Status),
	})
}

// HandleIPN handles GET and POST /payments/ipn.
// Pesapal's server-to-server notification. Always acknowledged with 200 so
// Pesapal stops redelivering; failed reconciliations are retried by the next
// IPN or by the callback.
func (h *Handler) HandleIPN(c *gin.Context) {
	trackingID := c.Query("OrderTrackingId")
	notificationType := c.Query("OrderNotificationType")
	merchantRef := c.Query("OrderMerchantReference")

	if trackingID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	status := "200"
	if err := h.reconciler.HandleNotification(c.Request.Context(), trackingID, "", "ipn"); err != nil {
		h.logger.Error("ipn reconciliation failed",
			zap.String("tracking_id", trackingID), zap.Error(err))
		status = "500"
	}

	// Pesapal expects its own fields echoed back.
	c.JSON(http.StatusOK, gin.H{
		"orderNotificationType":  notificationType,
		"orderTrackingId":        trackingID,
		"orderMerchantReference": merchantRef,
		"status":                 status,
	})
}

// paystackWebhook is the envelope Paystack posts to webhook endpoints.
type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// HandlePaystackWebhook handles POST /payments/webhook/paystack.
// The signature gates processing; the claimed status in the body is only
// passed along for mismatch logging, never trusted.
func (h *Handler) HandlePaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: "unreadable body"})
		return
	}

	if !paystack.ValidateSignature(body, c.GetHeader("x-paystack-signature"), h.paystackSecret) {
		h.logger.Warn("paystack webhook with bad signature")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Success: false,
			Error:   "invalid signature",
			Code:    "BAD_SIGNATURE",
		})
		return
	}

	var hook paystackWebhook
	if err := json.Unmarshal(body, &hook); err != nil || hook.Data.Reference == "" {
		h.logger.Warn("unparseable paystack webhook", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if err := h.reconciler.HandleNotification(c.Request.Context(), hook.Data.Reference, hook.Data.Status, "ipn"); err != nil {
		h.logger.Error("paystack webhook reconciliation failed",
			zap.String("reference", hook.Data.Reference), zap.Error(err))
		// Still 200: Paystack redelivers on non-2xx and the next attempt
		// hits the same verified-status path.
		c.JSON(http.StatusOK, gin.H{"status": "processed_with_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "safari-payments",
	})
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	var paymentErr *domain.PaymentError
	if errors.As(err, &paymentErr) {
		statusCode := http.StatusInternalServerError

		switch {
		case errors.Is(paymentErr.Err, domain.ErrValidation):
			statusCode = http.StatusBadRequest
		case errors.Is(paymentErr.Err, domain.ErrDuplicateRequest):
			statusCode = http.StatusConflict
		case errors.Is(paymentErr.Err, domain.ErrNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(paymentErr.Err, domain.ErrAuth):
			statusCode = http.StatusBadGateway
		case errors.Is(paymentErr.Err, domain.ErrProvider):
			statusCode = http.StatusBadGateway
		}

		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   paymentErr.Message,
			Code:    paymentErr.Code,
		})
		return
	}

	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Success: false,
			Error:   "payment not found",
			Code:    "NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error:   "Internal server error",
		Code:    "INTERNAL_ERROR",
	})
}
