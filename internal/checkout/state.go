package checkout

import (
	"fmt"
	"slices"
	"sync"
)

type CardState int

const (
	CardIdle CardState = iota
	CardSubmitting
	CardAwaitingGateway
	CardSuccess
	CardRedirected
	CardCancelled
	CardError
)

func (s CardState) String() string {
	switch s {
	case CardIdle:
		return "idle"
	case CardSubmitting:
		return "submitting"
	case CardAwaitingGateway:
		return "awaiting_gateway"
	case CardSuccess:
		return "success"
	case CardRedirected:
		return "redirected"
	case CardCancelled:
		return "cancelled"
	case CardError:
		return "error"
	}
	return fmt.Sprintf("card_state(%d)", int(s))
}

// Success and redirected are final; cancelled and error fall back to idle.
var cardTransitions = map[CardState][]CardState{
	CardIdle:            {CardSubmitting},
	CardSubmitting:      {CardAwaitingGateway, CardRedirected, CardError},
	CardAwaitingGateway: {CardSuccess, CardCancelled, CardError},
	CardCancelled:       {CardIdle},
	CardError:           {CardIdle},
}

type MobileState int

const (
	MobileIdle MobileState = iota
	MobileSubmitting
	MobileAwaitingPrompt
	MobilePolling
	MobileConfirmed
	MobileStillPending
	MobileError
)

func (s MobileState) String() string {
	switch s {
	case MobileIdle:
		return "idle"
	case MobileSubmitting:
		return "submitting"
	case MobileAwaitingPrompt:
		return "awaiting_carrier_prompt"
	case MobilePolling:
		return "polling"
	case MobileConfirmed:
		return "confirmed"
	case MobileStillPending:
		return "still_pending"
	case MobileError:
		return "error"
	}
	return fmt.Sprintf("mobile_state(%d)", int(s))
}

// Confirmed is final. A still-pending or failed payment may be retried from idle.
var mobileTransitions = map[MobileState][]MobileState{
	MobileIdle:           {MobileSubmitting},
	MobileSubmitting:     {MobileAwaitingPrompt, MobileError},
	MobileAwaitingPrompt: {MobilePolling, MobileStillPending},
	MobilePolling:        {MobileConfirmed, MobileStillPending, MobileError},
	MobileStillPending:   {MobileIdle},
	MobileError:          {MobileIdle},
}

type state interface {
	comparable
	fmt.Stringer
}

// machine guards the current state of one flow.
type machine[S state] struct {
	mu      sync.Mutex
	current S
	allowed map[S][]S
	observe func(from, to S)
}

func newMachine[S state](initial S, allowed map[S][]S) *machine[S] {
	return &machine[S]{current: initial, allowed: allowed}
}

func (m *machine[S]) get() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// to moves to next, or leaves the state unchanged and returns
// ErrIllegalTransition.
func (m *machine[S]) to(next S) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(m.allowed[from], next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, next)
	}
	m.current = next
	observe := m.observe
	m.mu.Unlock()

	if observe != nil {
		observe(from, next)
	}
	return nil
}

func (m *machine[S]) setObserver(fn func(from, to S)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe = fn
}
