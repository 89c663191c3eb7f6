package speech

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RestartPolicy controls how a recognition run that ended on its own is
// restarted while the session is still listening.
type RestartPolicy struct {
	InitialDelay time.Duration
	// Multiplier grows the delay between consecutive restarts. Values of 1
	// or less keep it constant.
	Multiplier float64
	// MaxDelay caps a growing delay. Zero keeps the one minute default.
	MaxDelay time.Duration
	// MaxAttempts is the number of consecutive restarts allowed before the
	// session is abandoned. Zero means unlimited.
	MaxAttempts uint64
}

// DefaultRestartPolicy restarts after a fixed 500ms, forever.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{InitialDelay: 500 * time.Millisecond, Multiplier: 1}
}

// NewBackOff returns a fresh schedule for one session.
func (p RestartPolicy) NewBackOff() backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(p.InitialDelay)
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.InitialDelay
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		if p.MaxDelay > 0 {
			eb.MaxInterval = p.MaxDelay
		}
		eb.Reset()
		b = eb
	}
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts)
	}
	return b
}
