package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrBudgetExhausted is returned once the run-level backoff has waited out
// its maximum number of rate-limit windows. It is run-fatal: the pipeline
// reports progress so far and stops rather than retrying forever.
var ErrBudgetExhausted = errors.New("rate-limit retry budget exhausted")

// BackoffConfig controls the run-level rate-limit backoff. The external
// quota is shared across all in-flight extraction calls, so the policy is
// deliberately coarse: one rate-limit response suspends the whole remaining
// batch, not just the call that saw it.
type BackoffConfig struct {
	// InitialWait is the first suspension window. Default: 1h.
	InitialWait time.Duration

	// MaxWait caps the suspension window. Default: 2h.
	MaxWait time.Duration

	// Multiplier scales the window on each consecutive rate limit. Default: 1.5.
	Multiplier float64

	// MaxAttempts bounds the total number of suspensions per run before the
	// run aborts. Default: 100.
	MaxAttempts int
}

// DefaultBackoffConfig returns the production backoff policy.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialWait: time.Hour,
		MaxWait:     2 * time.Hour,
		Multiplier:  1.5,
		MaxAttempts: 100,
	}
}

// Backoff tracks consecutive rate-limit suspensions across a run. Not safe
// for concurrent use; the pipeline is single-threaded by design.
type Backoff struct {
	cfg      BackoffConfig
	next     time.Duration
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBackoff creates a Backoff with the given policy.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = time.Hour
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Hour
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 1.5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 100
	}
	return &Backoff{
		cfg:   cfg,
		next:  cfg.InitialWait,
		sleep: sleepContext,
	}
}

// WithSleeper replaces the sleep function. Tests inject a recorder so
// backoff sequences are assertable without wall-clock waits.
func (b *Backoff) WithSleeper(fn func(ctx context.Context, d time.Duration) error) *Backoff {
	b.sleep = fn
	return b
}

// Wait suspends the caller for the current window, then grows the window for
// the next consecutive rate limit. Returns ErrBudgetExhausted once the
// attempt budget is spent, or the context error if cancelled mid-wait.
func (b *Backoff) Wait(ctx context.Context) error {
	b.attempts++
	if b.attempts > b.cfg.MaxAttempts {
		return ErrBudgetExhausted
	}

	wait := b.next
	zap.L().Warn("rate limited, suspending batch",
		zap.Duration("wait", wait),
		zap.Int("attempt", b.attempts),
		zap.Int("budget", b.cfg.MaxAttempts),
	)

	if err := b.sleep(ctx, wait); err != nil {
		return err
	}

	b.next = time.Duration(float64(b.next) * b.cfg.Multiplier)
	if b.next > b.cfg.MaxWait {
		b.next = b.cfg.MaxWait
	}
	return nil
}

// Reset shrinks the window back to the initial wait. Called after a
// successful external call: "consecutive" rate limits grow the window,
// a success breaks the streak.
func (b *Backoff) Reset() {
	b.next = b.cfg.InitialWait
}

// Attempts reports how many suspensions have occurred this run.
func (b *Backoff) Attempts() int {
	return b.attempts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
