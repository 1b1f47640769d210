package models

import "time"

// PaymentStatus is the payment state of a booking.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// AttemptStatus is the state of a single gateway transaction.
type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptSuccess   AttemptStatus = "success"
	AttemptPending   AttemptStatus = "pending"
	AttemptCancelled AttemptStatus = "cancelled"
	AttemptError     AttemptStatus = "error"
)

// Active reports whether the attempt still holds its booking.
func (s AttemptStatus) Active() bool {
	return s == AttemptInitiated || s == AttemptPending
}

const (
	LabelPartialPayment = "Partial Payment"
	LabelFullPayment    = "Full Payment"
)

const (
	MethodCard        = "card"
	MethodMobileMoney = "mobile_money"
)

const (
	NetworkMTN        = "mtn"
	NetworkVodafone   = "vodafone"
	NetworkAirtelTigo = "airteltigo"
)

// Verification statuses reported by GET /api/payments/verify/:reference.
const (
	VerifySuccess = "success"
	VerifyPending = "pending"
	VerifyFailed  = "failed"
)

const (
	TaskVerifyPayment = "verify_payment"
	TaskLedgerUpsert  = "ledger_upsert"
)

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

const (
	DefaultCurrency = "GHS"

	// DateLayout is the wire format of check-in and check-out dates.
	DateLayout = "2006-01-02"

	// MobileVerifyDelay is the wait between a carrier prompt and its verification.
	MobileVerifyDelay = 5000 * time.Millisecond

	// DefaultAttemptTTL bounds the lifetime of the active-attempt lock.
	DefaultAttemptTTL = 30 * time.Minute

	// PaymentRateLimit initiations per customer email in PaymentRateLimitWindow.
	PaymentRateLimit       = 10
	PaymentRateLimitWindow = 10 * time.Minute

	// WebhookDedupTTL keeps processed webhook keys around for replays.
	WebhookDedupTTL = 48 * time.Hour

	WorkerQueueSize = 128

	SuccessPath = "/bookings/success"
)
