package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Brymax254/safari-payments/internal/domain"
	"github.com/Brymax254/safari-payments/internal/metrics"
)

// Reconciler turns provider notifications (browser callbacks and server IPNs)
// into terminal payment transitions. The claimed status in a notification is
// never trusted: the provider is re-queried and only the verified status can
// finalize a payment. Finalization is exactly-once regardless of how many
// notifications arrive for the same transaction.
type Reconciler struct {
	repo     domain.Repository
	gateways map[domain.Provider]domain.Gateway
	bus      domain.EventPublisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler covering the given gateways.
func NewReconciler(repo domain.Repository, gateways []domain.Gateway, bus domain.EventPublisher, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	byName := make(map[domain.Provider]domain.Gateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	return &Reconciler{
		repo:     repo,
		gateways: byName,
		bus:      bus,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleNotification processes one notification for a tracking id. source is
// "callback" or "ipn" and only feeds logs and metrics. claimedStatus is
// whatever the notification carried; it is logged when it disagrees with the
// verified status but never acted on.
//
// Unknown tracking ids and duplicate notifications return nil so transports
// can acknowledge them; the provider must not keep redelivering.
func (r *Reconciler) HandleNotification(ctx context.Context, trackingID, claimedStatus, source string) error {
	r.metrics.NotificationsReceived.WithLabelValues(source).Inc()

	p, err := r.repo.FindByTrackingID(ctx, trackingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.metrics.NotificationsUnknown.Inc()
			r.logger.Warn("notification for unknown tracking id",
				zap.String("tracking_id", trackingID),
				zap.String("source", source))
			return nil
		}
		return err
	}

	if p.Status.Terminal() {
		r.metrics.NotificationsDuplicate.Inc()
		r.logger.Info("notification for finalized payment",
			zap.String("merchant_ref", p.MerchantRef),
			zap.String("status", string(p.Status)),
			zap.String("source", source))
		return nil
	}

	gw, ok := r.gateways[p.Provider]
	if !ok {
		return fmt.Errorf("no gateway configured for provider %s", p.Provider)
	}

	verified, err := gw.QueryStatus(ctx, trackingID)
	if err != nil {
		return fmt.Errorf("status query for %s: %w", p.MerchantRef, err)
	}

	if claimedStatus != "" && !strings.EqualFold(claimedStatus, verified.RawStatus) {
		r.logger.Warn("claimed status disagrees with provider",
			zap.String("merchant_ref", p.MerchantRef),
			zap.String("claimed", claimedStatus),
			zap.String("verified", verified.RawStatus))
	}

	if !verified.Mapped {
		r.logger.Info("payment not terminal at provider yet",
			zap.String("merchant_ref", p.MerchantRef),
			zap.String("raw_status", verified.RawStatus))
		return nil
	}

	if verified.State == domain.StatusSuccess && !verified.Amount.IsZero() && !verified.Amount.Equal(p.Amount) {
		r.logger.Warn("confirmed amount differs from requested amount",
			zap.String("merchant_ref", p.MerchantRef),
			zap.String("requested", p.Amount.StringFixed(2)),
			zap.String("confirmed", verified.Amount.StringFixed(2)))
	}

	reason := ""
	if verified.State != domain.StatusSuccess {
		reason = verified.RawStatus
	}
	confirmedAt := time.Time{}
	if verified.State == domain.StatusSuccess {
		confirmedAt = verified.PaidAt
		if confirmedAt.IsZero() {
			confirmedAt = r.now()
		}
	}

	won, err := r.repo.Finalize(ctx, p.ID, verified.State, reason, verified.Channel, confirmedAt)
	if err != nil {
		return err
	}
	if !won {
		// A concurrent notification finalized first.
		r.metrics.NotificationsDuplicate.Inc()
		return nil
	}

	r.metrics.Reconciliations.WithLabelValues(string(verified.State)).Inc()
	r.logger.Info("payment finalized",
		zap.String("merchant_ref", p.MerchantRef),
		zap.String("tracking_id", trackingID),
		zap.String("status", string(verified.State)),
		zap.String("channel", verified.Channel),
		zap.String("source", source))

	evtType := domain.EventPaymentConfirmed
	if verified.State != domain.StatusSuccess {
		evtType = domain.EventPaymentFailed
	}
	evt := domain.Event{
		Type:        evtType,
		MerchantRef: p.MerchantRef,
		TrackingID:  trackingID,
		Provider:    p.Provider,
		Status:      verified.State,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Channel:     verified.Channel,
		OccurredAt:  r.now(),
	}
	if err := r.bus.Publish(evt); err != nil {
		// The transition is already durable; subscribers recover on their own.
		r.logger.Error("event publish failed",
			zap.String("merchant_ref", p.MerchantRef), zap.Error(err))
	}
	return nil
}
