package checkout

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayCancelled is returned when the customer closes the payment widget.
	ErrGatewayCancelled = errors.New("payment cancelled")
	// ErrPaymentFailed is a conclusive failure reported by verification.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrIllegalTransition rejects a step the flow's state does not allow,
	// such as submitting twice.
	ErrIllegalTransition = errors.New("illegal checkout state transition")
	// ErrNoGatewayHandle means initialization returned neither an access code
	// nor an authorization URL.
	ErrNoGatewayHandle = errors.New("gateway returned no access code or authorization url")
)

// InitiationError is a failed call to initialize-payment or mobile-payment.
type InitiationError struct {
	Message string
	Err     error
}

func (e *InitiationError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Message
}

func (e *InitiationError) Unwrap() error { return e.Err }

// GatewayError is reported by the payment widget.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return "payment gateway error"
	}
	return "payment gateway error: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// VerificationInconclusive means the single verification check did not
// observe a settled payment. The payment may still complete.
type VerificationInconclusive struct {
	Reference string
	Status    string
	Err       error
}

func (e *VerificationInconclusive) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment %s still pending: %v", e.Reference, e.Err)
	}
	return fmt.Sprintf("payment %s still pending (status %q)", e.Reference, e.Status)
}

func (e *VerificationInconclusive) Unwrap() error { return e.Err }
