// Package payment implements the core business logic for payment processing.
// This is the service/use-case layer: it owns the payment lifecycle and
// orchestrates between the repository and the payment gateway.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/metrics"
)

// Service implements the checkout flow. Gateways are selected per payment;
// the first gateway in the list is the default when a request names none.
type Service struct {
	repo            domain.Repository
	gateways        map[domain.Provider]domain.Gateway
	defaultProvider domain.Provider
	metrics         *metrics.Metrics
	logger          *zap.Logger
	now             func() time.Time
}

// NewService creates a payment service fronting the given gateways.
func NewService(repo domain.Repository, gateways []domain.Gateway, m *metrics.Metrics, logger *zap.Logger) *Service {
	byName := make(map[domain.Provider]domain.Gateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	s := &Service{
		repo:     repo,
		gateways: byName,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	if len(gateways) > 0 {
		s.defaultProvider = gateways[0].Name()
	}
	return s
}

// StartRequest is the input for starting a checkout.
type StartRequest struct {
	MerchantRef    string
	Provider       string // PESAPAL or PAYSTACK; empty selects the default
	Amount         decimal.Decimal
	Currency       string
	Description    string
	PayerEmail     string
	PayerPhone     string
	PayerFirstName string
	PayerLastName  string
	CallbackURL    string
}

// StartPayment handles the checkout flow:
// 1. Validates the request
// 2. Creates a PENDING payment record
// 3. Submits the order to the provider
// 4. Moves the payment to SUBMITTED and returns the redirect URL
//
// Re-entrant starts for an already submitted reference return the stored
// redirect without contacting the provider again.
func (s *Service) StartPayment(ctx context.Context, req StartRequest) (*domain.OrderResult, error) {
	if err := validateStart(req); err != nil {
		return nil, err
	}
	gw, err := s.resolveGateway(req.Provider)
	if err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(req.MerchantRef)
	if ref == "" {
		ref = NewReference()
	}
	currency := req.Currency
	if currency == "" {
		currency = "KES"
	}

	// Step 1: Duplicate handling. A SUBMITTED payment replays its stored
	// result; anything else for the same reference is a conflict.
	existing, findErr := s.repo.FindByMerchantRef(ctx, ref)
	if findErr != nil && !errors.Is(findErr, domain.ErrNotFound) {
		return nil, findErr
	}
	if existing != nil {
		if existing.Status == domain.StatusSubmitted && existing.TrackingID != "" {
			s.logger.Info("replaying submitted payment",
				zap.String("merchant_ref", ref),
				zap.String("tracking_id", existing.TrackingID))
			return &domain.OrderResult{
				RedirectURL: existing.RedirectURL,
				TrackingID:  existing.TrackingID,
				MerchantRef: ref,
			}, nil
		}
		return nil, domain.NewPaymentError(domain.ErrDuplicateRequest,
			"payment already exists for reference "+ref,
			"DUPLICATE_REFERENCE")
	}

	// Step 2: Persist the attempt before any network call.
	now := s.now()
	p := &domain.Payment{
		ID:             uuid.NewString(),
		MerchantRef:    ref,
		Provider:       gw.Name(),
		Amount:         req.Amount,
		Currency:       currency,
		Description:    req.Description,
		PayerEmail:     req.PayerEmail,
		PayerPhone:     NormalizePhone(req.PayerPhone),
		PayerFirstName: req.PayerFirstName,
		PayerLastName:  req.PayerLastName,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.metrics.PaymentsStarted.Inc()

	// Step 3: Submit the order. The provider dedupes on the merchant
	// reference, so one extra attempt after a transport failure is safe.
	order := domain.OrderRequest{
		MerchantRef:    ref,
		Amount:         req.Amount,
		Currency:       currency,
		Description:    req.Description,
		PayerEmail:     req.PayerEmail,
		PayerPhone:     p.PayerPhone,
		PayerFirstName: req.PayerFirstName,
		PayerLastName:  req.PayerLastName,
		CallbackURL:    req.CallbackURL,
	}
	result, err := s.submitOnce(ctx, gw, order)
	if err != nil {
		s.metrics.PaymentsFailed.Inc()
		if _, ferr := s.repo.Finalize(ctx, p.ID, domain.StatusFailed, submitFailureReason(err), "", time.Time{}); ferr != nil {
			s.logger.Error("failed to mark payment failed",
				zap.String("merchant_ref", ref), zap.Error(ferr))
		}
		s.logger.Error("order submission failed",
			zap.String("merchant_ref", ref),
			zap.String("provider", string(gw.Name())),
			zap.Error(err))
		return nil, err
	}

	// Step 4: Record the tracking id. The payment is now SUBMITTED and only
	// reconciliation can move it further.
	if err := s.repo.MarkSubmitted(ctx, p.ID, result.TrackingID, result.RedirectURL); err != nil {
		return nil, err
	}
	s.metrics.PaymentsSubmitted.Inc()

	s.logger.Info("order submitted",
		zap.String("merchant_ref", ref),
		zap.String("tracking_id", result.TrackingID),
		zap.String("provider", string(gw.Name())),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", currency))

	return result, nil
}

// resolveGateway picks the gateway for a requested provider name. Unknown
// names are rejected before any row is created.
func (s *Service) resolveGateway(provider string) (domain.Gateway, error) {
	name := domain.Provider(strings.ToUpper(strings.TrimSpace(provider)))
	if name == "" {
		name = s.defaultProvider
	}
	gw, ok := s.gateways[name]
	if !ok {
		return nil, domain.NewPaymentError(domain.ErrValidation,
			"unknown payment provider: "+string(name),
			"VALIDATION_ERROR")
	}
	return gw, nil
}

// submitOnce submits the order, retrying a single time only for transport
// failures where the provider never produced a response.
func (s *Service) submitOnce(ctx context.Context, gw domain.Gateway, order domain.OrderRequest) (*domain.OrderResult, error) {
	result, err := gw.SubmitOrder(ctx, order)
	if err == nil {
		return result, nil
	}

	var perr *domain.PaymentError
	if errors.As(err, &perr) || ctx.Err() != nil {
		// The provider answered (or we were cancelled); do not resubmit.
		return nil, err
	}

	s.logger.Warn("order submission transport failure, retrying once",
		zap.String("merchant_ref", order.MerchantRef), zap.Error(err))
	return gw.SubmitOrder(ctx, order)
}

// GetPayment looks up a payment by merchant reference.
func (s *Service) GetPayment(ctx context.Context, ref string) (*domain.Payment, error) {
	return s.repo.FindByMerchantRef(ctx, ref)
}

// NewReference generates a merchant reference of the form PAY-9F2C41.
func NewReference() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "PAY-" + id[:10]
}

func submitFailureReason(err error) string {
	var perr *domain.PaymentError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}

func validateStart(req StartRequest) error {
	if !req.Amount.IsPositive() {
		return domain.NewPaymentError(domain.ErrValidation,
			"amount must be greater than 0",
			"VALIDATION_ERROR")
	}
	if req.PayerEmail == "" {
		return domain.NewPaymentError(domain.ErrValidation,
			"payer_email is required",
			"VALIDATION_ERROR")
	}
	return nil
}
