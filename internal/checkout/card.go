package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hostelpay/internal/payment"

	"github.com/rs/zerolog"
)

// CardResult describes how a card checkout ended successfully.
type CardResult struct {
	Reference string
	BookingID string
	// SuccessPath is set when the widget completed the payment.
	SuccessPath string
	// RedirectURL is set when the customer was sent to the gateway's page.
	RedirectURL string
}

// CardFlow runs one card checkout: initialize with the backend, then hand
// the customer to the gateway widget or its hosted page.
type CardFlow struct {
	backend  Backend
	widget   Widget
	nav      Navigator
	notifier Notifier
	state    *machine[CardState]
	logger   zerolog.Logger
}

func NewCardFlow(backend Backend, widget Widget, nav Navigator, notifier Notifier, logger *zerolog.Logger) *CardFlow {
	f := &CardFlow{
		backend:  backend,
		widget:   widget,
		nav:      nav,
		notifier: notifier,
		state:    newMachine(CardIdle, cardTransitions),
		logger:   zerolog.Nop(),
	}
	if logger != nil {
		f.logger = logger.With().Str("component", "card_flow").Logger()
	}
	return f
}

func (f *CardFlow) State() CardState { return f.state.get() }

// Loading is true while the customer has to wait on the flow.
func (f *CardFlow) Loading() bool {
	switch f.state.get() {
	case CardSubmitting, CardAwaitingGateway:
		return true
	}
	return false
}

// Observe registers fn to be called after every state change.
func (f *CardFlow) Observe(fn func(from, to CardState)) { f.state.setObserver(fn) }

// Submit builds the intent from the booking form and pays it.
func (f *CardFlow) Submit(ctx context.Context, in payment.IntentInput) (*CardResult, error) {
	intent, err := payment.BuildIntent(in)
	if err != nil {
		f.notifier.Notify(LevelError, err.Error())
		return nil, err
	}
	return f.SubmitIntent(ctx, intent)
}

// SubmitIntent pays a prepared intent, e.g. the balance of a partial booking.
func (f *CardFlow) SubmitIntent(ctx context.Context, intent payment.Intent) (*CardResult, error) {
	if err := f.state.to(CardSubmitting); err != nil {
		return nil, err
	}

	resp, err := f.backend.InitializePayment(ctx, intent)
	if err == nil && !resp.Success {
		err = &InitiationError{Message: resp.Message}
	}
	var handle GatewayHandle
	if err == nil {
		handle, err = HandleFrom(resp)
	}
	if err != nil {
		return nil, f.fail(initiationError(err, "Failed to initialize payment"))
	}

	switch h := handle.(type) {
	case Redirect:
		f.logger.Info().Str("reference", resp.Reference).Msg("Redirecting to gateway checkout")
		if err := f.nav.Redirect(h.URL); err != nil {
			return nil, f.fail(&InitiationError{Message: "Could not open the payment page", Err: err})
		}
		_ = f.state.to(CardRedirected)
		return &CardResult{Reference: resp.Reference, BookingID: resp.BookingID, RedirectURL: h.URL}, nil

	case Popup:
		_ = f.state.to(CardAwaitingGateway)
		return f.awaitWidget(ctx, h, resp)
	}
	return nil, f.fail(&InitiationError{Err: ErrNoGatewayHandle})
}

type widgetOutcome struct {
	reference string
	cancelled bool
	err       error
}

func (f *CardFlow) awaitWidget(ctx context.Context, popup Popup, resp *InitializeResponse) (*CardResult, error) {
	done := make(chan widgetOutcome, 1)
	report := func(o widgetOutcome) {
		select {
		case done <- o:
		default:
		}
	}

	f.widget.ResumeTransaction(popup.AccessCode, Callbacks{
		OnSuccess: func(reference string) { report(widgetOutcome{reference: reference}) },
		OnCancel:  func() { report(widgetOutcome{cancelled: true}) },
		OnError:   func(err error) { report(widgetOutcome{err: err}) },
	})

	var out widgetOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = widgetOutcome{cancelled: true}
	}

	switch {
	case out.cancelled:
		_ = f.state.to(CardCancelled)
		f.notifier.Notify(LevelWarning, "Payment cancelled")
		_ = f.state.to(CardIdle)
		return nil, ErrGatewayCancelled

	case out.err != nil:
		_ = f.state.to(CardError)
		gerr := &GatewayError{Err: out.err}
		f.notifier.Notify(LevelError, "Payment failed. Please try again")
		f.logger.Warn().Err(out.err).Str("reference", resp.Reference).Msg("Payment widget error")
		_ = f.state.to(CardIdle)
		return nil, gerr
	}

	reference := strings.TrimSpace(out.reference)
	if reference == "" {
		reference = resp.Reference
	}
	path := SuccessPath(reference, resp.BookingID)
	if err := f.nav.Navigate(path); err != nil {
		// paid, but the confirmation page could not be shown
		_ = f.state.to(CardError)
		f.notifier.Notify(LevelError, "Payment received but the confirmation page could not be opened. Reference: "+reference)
		f.logger.Error().Err(err).Str("reference", reference).Str("path", path).Msg("Navigation to success page failed")
		_ = f.state.to(CardIdle)
		return nil, fmt.Errorf("navigate to %s: %w", path, err)
	}
	_ = f.state.to(CardSuccess)
	f.notifier.Notify(LevelSuccess, "Payment successful")
	return &CardResult{Reference: reference, BookingID: resp.BookingID, SuccessPath: path}, nil
}

// fail reports an initiation failure and returns the flow to idle.
func (f *CardFlow) fail(err *InitiationError) error {
	_ = f.state.to(CardError)
	f.notifier.Notify(LevelError, err.Message)
	f.logger.Warn().Err(err).Msg("Card payment initialization failed")
	_ = f.state.to(CardIdle)
	return err
}

// initiationError keeps the backend's message when it sent one.
func initiationError(err error, fallback string) *InitiationError {
	var ierr *InitiationError
	if errors.As(err, &ierr) {
		if ierr.Message == "" {
			ierr.Message = fallback
		}
		return ierr
	}
	var herr *HTTPError
	if errors.As(err, &herr) && herr.Message != "" {
		return &InitiationError{Message: herr.Message, Err: err}
	}
	return &InitiationError{Message: fallback, Err: err}
}
