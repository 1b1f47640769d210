package worker

import (
	"time"

	"hostelpay/internal/config"
)

// Reconcile defaults used when the config leaves a field unset.
const (
	defaultVerifyRetries = 5
	defaultFirstCheck    = 2 * time.Second
	defaultRetryCeiling  = time.Minute
	defaultGrowth        = 2.0
)

// RetryPolicy spaces out gateway re-checks of an attempt that has not
// settled yet. Retries are counted from 1.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryPolicyFrom reads the reconcile section of the payments config.
func RetryPolicyFrom(rc config.ReconcileConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    rc.MaxRetries,
		InitialDelay:  rc.InitialDelay,
		MaxDelay:      rc.MaxDelay,
		BackoffFactor: rc.BackoffFactor,
	}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultVerifyRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultFirstCheck
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultRetryCeiling
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = defaultGrowth
	}
	return p
}

// FirstCheckAt is when a freshly opened attempt is first re-verified.
func (p RetryPolicy) FirstCheckAt(now time.Time) time.Time {
	return now.Add(p.withDefaults().InitialDelay)
}

// Exhausted reports whether the retry-th failure gives up on the task.
func (p RetryPolicy) Exhausted(retry int) bool {
	return retry >= p.withDefaults().MaxRetries
}

// RetryAt schedules the retry-th re-check after now.
func (p RetryPolicy) RetryAt(now time.Time, retry int) time.Time {
	return now.Add(p.NextDelay(retry))
}

// NextDelay grows InitialDelay by BackoffFactor for every earlier retry and
// never exceeds MaxDelay.
func (p RetryPolicy) NextDelay(retry int) time.Duration {
	p = p.withDefaults()
	d := min(p.InitialDelay, p.MaxDelay)
	for i := 1; i < retry; i++ {
		d = time.Duration(float64(d) * p.BackoffFactor)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}
