package payment

import (
	"errors"
	"fmt"

	"hostelpay/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrAlreadyPaid       = errors.New("booking is already paid")
)

// Event drives a booking's payment status.
type Event interface {
	isEvent()
}

// EventVerified is a confirmed gateway payment. Paid is the cumulative
// amount received for the booking including this payment.
type EventVerified struct {
	Paid  float64
	Total float64
}

// EventFailed is a gateway rejection or a conclusive verification failure.
type EventFailed struct{}

// EventRefunded is an admin refund.
type EventRefunded struct{}

func (EventVerified) isEvent() {}
func (EventFailed) isEvent()   {}
func (EventRefunded) isEvent() {}

// Transition returns the status that follows current on event.
func Transition(current models.PaymentStatus, event Event) (models.PaymentStatus, error) {
	if !current.Valid() {
		return current, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, current)
	}

	switch ev := event.(type) {
	case EventRefunded:
		return models.PaymentRefunded, nil

	case EventVerified:
		switch current {
		case models.PaymentPaid:
			return current, ErrAlreadyPaid
		case models.PaymentPending, models.PaymentPartial:
			if ev.Total <= 0 || ev.Paid <= 0 || models.ToMinorUnits(ev.Paid) > models.ToMinorUnits(ev.Total) {
				return current, fmt.Errorf("%w: paid %.2f of %.2f", ErrInvalidTransition, ev.Paid, ev.Total)
			}
			if SameAmount(ev.Paid, ev.Total) {
				return models.PaymentPaid, nil
			}
			if current == models.PaymentPartial {
				// a second payment must complete the balance
				return current, fmt.Errorf("%w: partial booking needs the full balance", ErrInvalidTransition)
			}
			return models.PaymentPartial, nil
		}

	case EventFailed:
		switch current {
		case models.PaymentPending, models.PaymentPartial:
			return models.PaymentFailed, nil
		}
	}

	return current, fmt.Errorf("%w: %s on %T", ErrInvalidTransition, current, event)
}

// Terminal reports whether no gateway event can change the status anymore.
func Terminal(s models.PaymentStatus) bool {
	return s == models.PaymentPaid || s == models.PaymentFailed || s == models.PaymentRefunded
}
