// Package domain contains the core business entities and interfaces for the payment service.
// This is the innermost layer of the Clean Architecture - it has no dependencies on
// external frameworks or infrastructure.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a Payment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. The only legal edges are:
//
//	PENDING   -> SUBMITTED (tracking id assigned)
//	PENDING   -> FAILED    (order submission failed)
//	SUBMITTED -> SUCCESS | FAILED | CANCELLED (set by the reconciler)
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusSubmitted || to == StatusFailed
	case StatusSubmitted:
		return to.Terminal()
	}
	return false
}

// Provider identifies the external payment gateway a Payment belongs to.
type Provider string

const (
	ProviderPesapal  Provider = "PESAPAL"
	ProviderPaystack Provider = "PAYSTACK"
)

// Payment is the local record of one payment attempt. It is owned by the
// booking domain; this service only ever mutates status, tracking id,
// channel, failure reason and the confirmation timestamp.
type Payment struct {
	ID          string
	MerchantRef string // unique, maps 1:1 to a booking attempt
	TrackingID  string // provider-assigned, empty until the order is created
	Provider    Provider

	Amount      decimal.Decimal
	Currency    string
	Description string

	PayerEmail     string
	PayerPhone     string
	PayerFirstName string
	PayerLastName  string

	Status        Status
	RedirectURL   string
	Channel       string // payment method reported by the provider (card, mpesa, ...)
	FailureReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
}
