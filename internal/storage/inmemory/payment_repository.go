// Package inmemory provides a map-backed Repository for tests and local
// development.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Brymax254/safari-payments/internal/domain"
)

// PaymentRepository implements domain.Repository in memory. Safe for
// concurrent use; the terminal transition is guarded under the write lock so
// only one writer wins.
type PaymentRepository struct {
	mu         sync.RWMutex
	payments   map[string]*domain.Payment
	byRef      map[string]string
	byTracking map[string]string
}

// NewPaymentRepository creates an empty repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments:   make(map[string]*domain.Payment),
		byRef:      make(map[string]string),
		byTracking: make(map[string]string),
	}
}

func (r *PaymentRepository) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRef[p.MerchantRef]; exists {
		return domain.NewPaymentError(domain.ErrDuplicateRequest,
			"merchant reference already exists: "+p.MerchantRef, "DUPLICATE_REFERENCE")
	}

	cp := *p
	r.payments[p.ID] = &cp
	r.byRef[p.MerchantRef] = p.ID
	if p.TrackingID != "" {
		r.byTracking[p.TrackingID] = p.ID
	}
	return nil
}

func (r *PaymentRepository) FindByMerchantRef(_ context.Context, ref string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(r.payments[id]), nil
}

func (r *PaymentRepository) FindByTrackingID(_ context.Context, trackingID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTracking[trackingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(r.payments[id]), nil
}

func (r *PaymentRepository) MarkSubmitted(_ context.Context, id, trackingID, redirectURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.StatusPending {
		return fmt.Errorf("payment %s is %s, expected %s", id, p.Status, domain.StatusPending)
	}

	p.Status = domain.StatusSubmitted
	p.TrackingID = trackingID
	p.RedirectURL = redirectURL
	p.UpdatedAt = time.Now()
	r.byTracking[trackingID] = id
	return nil
}

func (r *PaymentRepository) Finalize(_ context.Context, id string, status domain.Status, reason, channel string, confirmedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return false, nil
	}
	if !domain.CanTransition(p.Status, status) {
		return false, fmt.Errorf("illegal transition %s -> %s for payment %s", p.Status, status, id)
	}

	p.Status = status
	p.FailureReason = reason
	p.Channel = channel
	p.UpdatedAt = time.Now()
	if !confirmedAt.IsZero() {
		t := confirmedAt
		p.ConfirmedAt = &t
	}
	return true, nil
}

func clone(p *domain.Payment) *domain.Payment {
	cp := *p
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return &cp
}
