// Package retry holds the backoff policy used while waiting for the registry
// to serve a freshly published version.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Mode selects how the delay grows between attempts.
type Mode string

const (
	ModeFixed       Mode = "fixed"
	ModeLinear      Mode = "linear"
	ModeExponential Mode = "exponential"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       Mode
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // retries after the first failed attempt
	Jitter     float64       // fraction of the delay added or removed at random, 0 disables
}

// DefaultPolicy waits 2s, 4s, 8s, 16s and 30s (±25%) before giving up.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeExponential, Initial: 2 * time.Second, Max: 30 * time.Second, MaxRetries: 5, Jitter: 0.25}
}

// NewPolicy builds a policy from raw config fields; zero values fall back to
// the defaults. Unknown modes are rejected.
func NewPolicy(mode Mode, initial, maxDuration time.Duration, maxRetries int) (Policy, error) {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case "":
	case ModeFixed, ModeLinear, ModeExponential:
		p.Mode = mode
	default:
		return Policy{}, fmt.Errorf("unknown retry mode %q (want fixed, linear or exponential)", mode)
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p, nil
}

// Delay returns the backoff delay for the given retry (1-based: first retry => 1),
// before jitter.
func (p Policy) Delay(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}
	switch p.Mode {
	case ModeFixed:
		return p.Initial
	case ModeLinear:
		return capped(time.Duration(retry)*p.Initial, p.Max)
	default:
		if retry > 30 {
			return p.Max
		}
		return capped(p.Initial*(1<<(retry-1)), p.Max)
	}
}

// Jittered applies ±Jitter to Delay(retry). The result never exceeds Max.
func (p Policy) Jittered(retry int) time.Duration {
	d := float64(p.Delay(retry))
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	return capped(time.Duration(d), p.Max)
}

// Wait sleeps for the jittered delay of retry or until ctx is done.
func (p Policy) Wait(ctx context.Context, retry int) error {
	t := time.NewTimer(p.Jittered(retry))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1)")
	}
	return nil
}

func capped(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
