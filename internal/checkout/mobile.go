package checkout

import (
	"context"
	"strings"
	"time"

	"hostelpay/internal/models"
	"hostelpay/internal/payment"

	"github.com/rs/zerolog"
)

// MobileResult is passed to the success callback of a confirmed payment.
type MobileResult struct {
	Method    string
	Network   string
	Amount    float64
	Reference string
}

const (
	defaultPromptMessage  = "Please complete the payment prompt on your phone"
	stillPendingMessage   = "Payment is still pending. We will confirm it once your network does"
	mobileFailedMessage   = "Mobile money payment failed"
	mobileConfirmedNotice = "Payment confirmed"
)

// MobileFlow runs one mobile money checkout: send the carrier prompt, wait
// a fixed delay, then check the payment once.
type MobileFlow struct {
	backend   Backend
	notifier  Notifier
	onSuccess func(MobileResult)
	delay     time.Duration
	after     func(time.Duration) <-chan time.Time
	state     *machine[MobileState]
	logger    zerolog.Logger
}

// NewMobileFlow returns a flow that verifies delay after the prompt was sent.
// A non-positive delay uses models.MobileVerifyDelay.
func NewMobileFlow(
	backend Backend,
	notifier Notifier,
	onSuccess func(MobileResult),
	delay time.Duration,
	logger *zerolog.Logger,
) *MobileFlow {
	if delay <= 0 {
		delay = models.MobileVerifyDelay
	}
	f := &MobileFlow{
		backend:   backend,
		notifier:  notifier,
		onSuccess: onSuccess,
		delay:     delay,
		after:     time.After,
		state:     newMachine(MobileIdle, mobileTransitions),
		logger:    zerolog.Nop(),
	}
	if logger != nil {
		f.logger = logger.With().Str("component", "mobile_flow").Logger()
	}
	return f
}

func (f *MobileFlow) State() MobileState { return f.state.get() }

func (f *MobileFlow) Loading() bool {
	switch f.state.get() {
	case MobileSubmitting, MobileAwaitingPrompt, MobilePolling:
		return true
	}
	return false
}

func (f *MobileFlow) Observe(fn func(from, to MobileState)) { f.state.setObserver(fn) }

// Reset returns a still-pending or failed flow to idle so the customer can
// try again.
func (f *MobileFlow) Reset() error {
	return f.state.to(MobileIdle)
}

// Submit builds the mobile money intent from the booking form and pays it.
func (f *MobileFlow) Submit(ctx context.Context, in payment.IntentInput, mobile payment.MobileInput) (*MobileResult, error) {
	intent, err := payment.BuildMobileIntent(in, mobile)
	if err != nil {
		f.notifier.Notify(LevelError, err.Error())
		return nil, err
	}
	return f.SubmitIntent(ctx, intent)
}

// SubmitIntent pays a prepared intent that carries MobilePayment.
func (f *MobileFlow) SubmitIntent(ctx context.Context, intent payment.Intent) (*MobileResult, error) {
	if intent.MobilePayment == nil {
		err := &payment.ValidationError{Fields: []string{"network", "phoneNumber"}}
		f.notifier.Notify(LevelError, err.Error())
		return nil, err
	}
	if err := f.state.to(MobileSubmitting); err != nil {
		return nil, err
	}

	resp, err := f.backend.MobilePayment(ctx, intent)
	if err == nil && !resp.Success {
		err = &InitiationError{Message: resp.Message}
	}
	if err != nil {
		ierr := initiationError(err, "Failed to initiate mobile money payment")
		_ = f.state.to(MobileError)
		f.notifier.Notify(LevelError, ierr.Message)
		f.logger.Warn().Err(ierr).Msg("Mobile payment initiation failed")
		_ = f.state.to(MobileIdle)
		return nil, ierr
	}

	_ = f.state.to(MobileAwaitingPrompt)
	prompt := strings.TrimSpace(resp.Message)
	if prompt == "" {
		prompt = defaultPromptMessage
	}
	f.notifier.Notify(LevelInfo, prompt)

	select {
	case <-f.after(f.delay):
	case <-ctx.Done():
		_ = f.state.to(MobileStillPending)
		f.notifier.Notify(LevelWarning, stillPendingMessage)
		return nil, &VerificationInconclusive{Reference: resp.Reference, Err: ctx.Err()}
	}

	_ = f.state.to(MobilePolling)
	return f.verifyOnce(ctx, intent, resp.Reference)
}

func (f *MobileFlow) verifyOnce(ctx context.Context, intent payment.Intent, reference string) (*MobileResult, error) {
	v, err := f.backend.VerifyPayment(ctx, reference)
	if err != nil {
		_ = f.state.to(MobileStillPending)
		f.notifier.Notify(LevelWarning, stillPendingMessage)
		f.logger.Warn().Err(err).Str("reference", reference).Msg("Verification check failed")
		return nil, &VerificationInconclusive{Reference: reference, Err: err}
	}

	status := v.Data.Status
	switch {
	case v.Success && status == models.VerifySuccess:
		_ = f.state.to(MobileConfirmed)
		result := MobileResult{
			Method:    models.MethodMobileMoney,
			Network:   intent.MobilePayment.Network,
			Amount:    intent.PaymentAmount,
			Reference: reference,
		}
		f.notifier.Notify(LevelSuccess, mobileConfirmedNotice)
		if f.onSuccess != nil {
			f.onSuccess(result)
		}
		return &result, nil

	case v.Success && status == models.VerifyFailed:
		_ = f.state.to(MobileError)
		f.notifier.Notify(LevelError, mobileFailedMessage)
		return nil, ErrPaymentFailed
	}

	_ = f.state.to(MobileStillPending)
	f.notifier.Notify(LevelWarning, stillPendingMessage)
	return nil, &VerificationInconclusive{Reference: reference, Status: status}
}
