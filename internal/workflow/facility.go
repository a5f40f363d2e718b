// Package workflow abstracts the durable-execution facility the lifecycle
// engine runs its activities on. The real runtime is an external collaborator;
// this package only defines the contract the engine consumes, plus a local
// executor with the same at-least-once/retry shape for single-process
// deployments and tests.
package workflow

import (
	"context"
	"fmt"
	"time"

	"compliance-case-service/internal/logging"
)

// Facility executes a named activity, retrying transient failures. An
// implementation must run fn at least once and return its final error.
type Facility interface {
	Execute(ctx context.Context, name string, fn func(context.Context) error) error
}

// Options configure the local executor.
type Options struct {
	// ActivityTimeout bounds a single attempt.
	ActivityTimeout time.Duration
	// MaxAttempts bounds retries of transient failures.
	MaxAttempts int
	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	Backoff time.Duration
	// Retryable classifies errors; non-retryable errors fail the activity
	// immediately. A nil predicate retries everything.
	Retryable func(error) bool
}

// Local runs activities in-process with bounded retry and per-attempt
// timeouts. Business errors (precondition, validation, forbidden) are never
// retried; only transient infrastructure failures are.
type Local struct {
	opts Options
	log  *logging.Logger
}

// NewLocal builds a local facility.
func NewLocal(opts Options, log *logging.Logger) *Local {
	if opts.ActivityTimeout <= 0 {
		opts.ActivityTimeout = 20 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	return &Local{opts: opts, log: log}
}

// Execute runs the activity, retrying transient errors up to MaxAttempts.
func (l *Local) Execute(ctx context.Context, name string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, l.opts.ActivityTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if l.opts.Retryable != nil && !l.opts.Retryable(err) {
			return err
		}
		lastErr = err
		l.log.Warnf("activity %s attempt %d/%d failed: %v", name, attempt, l.opts.MaxAttempts, err)
		if attempt < l.opts.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * l.opts.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("activity %s failed after %d attempts: %w", name, l.opts.MaxAttempts, lastErr)
}
