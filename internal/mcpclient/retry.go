package mcpclient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrying wraps a ToolCaller with exponential backoff. Tool-level errors
// (ErrToolFailed) and calls whose context is done are not retried.
type Retrying struct {
	next     ToolCaller
	attempts uint
	base     time.Duration
	logger   *slog.Logger
	onRetry  func(wait time.Duration)
}

// NewRetrying creates a retrying caller. attempts < 1 is treated as 1.
// The wait before retry n (1-based) is base * 2^(n-1), capped at one minute.
func NewRetrying(next ToolCaller, attempts int, base time.Duration, logger *slog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{next: next, attempts: uint(attempts), base: base, logger: logger}
}

func (r *Retrying) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Minute
	return b
}

// CallTool implements ToolCaller.
func (r *Retrying) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		out, err := r.next.CallTool(ctx, name, args)
		if err != nil && (errors.Is(err, ErrToolFailed) || ctx.Err() != nil) {
			return "", backoff.Permanent(err)
		}
		return out, err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("mcp tool call failed, retrying", "tool", name, "attempt", attempt, "wait", wait, "error", err)
		if r.onRetry != nil {
			r.onRetry(wait)
		}
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(r.policy()),
		backoff.WithMaxTries(r.attempts),
		backoff.WithNotify(notify),
	)
}
