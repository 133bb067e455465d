// Package domain contains the core business entities and interfaces for the payment service.
package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is the immutable input for creating an order with a provider.
type OrderRequest struct {
	MerchantRef    string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	PayerEmail     string
	PayerPhone     string
	PayerFirstName string
	PayerLastName  string
	CallbackURL    string
}

// OrderResult is returned exactly once per successful order submission.
// TrackingID is the join key for all subsequent reconciliation.
type OrderResult struct {
	RedirectURL string
	TrackingID  string
	MerchantRef string
}

// VerifiedStatus is the provider's authoritative view of a transaction,
// obtained by querying the provider directly - never from a callback payload.
// State is only meaningful when Mapped is true; an unmapped status means the
// transaction has not reached a recognized terminal state yet.
type VerifiedStatus struct {
	RawStatus string
	State     Status
	Mapped    bool
	Amount    decimal.Decimal
	Currency  string
	PaidAt    time.Time
	Channel   string
	Raw       json.RawMessage
}

// Gateway abstracts an external payment provider. Implementations translate
// between the domain types and the provider's wire format and own the
// provider's status vocabulary.
type Gateway interface {
	Name() Provider

	// SubmitOrder creates an order with the provider and returns the redirect
	// URL for the payer plus the provider tracking id.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// QueryStatus fetches the authoritative transaction status. It must be
	// called before any terminal state transition.
	QueryStatus(ctx context.Context, trackingID string) (*VerifiedStatus, error)
}

// Repository persists Payment records. The terminal transition is a
// conditional update so that exactly one writer wins under concurrency.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	FindByMerchantRef(ctx context.Context, ref string) (*Payment, error)
	FindByTrackingID(ctx context.Context, trackingID string) (*Payment, error)

	// MarkSubmitted stores the tracking id and redirect URL and moves the
	// payment from PENDING to SUBMITTED. Fails if the payment is not PENDING.
	MarkSubmitted(ctx context.Context, id, trackingID, redirectURL string) error

	// Finalize atomically sets a terminal status, guarded by "status is not
	// already terminal". Returns false when another writer won the race (or a
	// terminal state was already set) - callers must treat that as a no-op.
	Finalize(ctx context.Context, id string, status Status, reason, channel string, confirmedAt time.Time) (bool, error)
}

// EventPublisher delivers payment lifecycle events to the booking layer.
type EventPublisher interface {
	Publish(evt Event) error
}
