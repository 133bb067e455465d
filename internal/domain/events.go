// Package domain contains the core business entities and interfaces for the payment service.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a payment lifecycle event.
type EventType string

const (
	// EventPaymentConfirmed is published exactly once when a payment reaches SUCCESS.
	EventPaymentConfirmed EventType = "payment.confirmed"

	// EventPaymentFailed is published exactly once when a payment reaches FAILED or CANCELLED.
	EventPaymentFailed EventType = "payment.failed"
)

// Event is consumed by the booking layer to finalize or release a booking.
type Event struct {
	Type        EventType
	MerchantRef string
	TrackingID  string
	Provider    Provider
	Status      Status
	Amount      decimal.Decimal
	Currency    string
	Channel     string
	OccurredAt  time.Time
}
