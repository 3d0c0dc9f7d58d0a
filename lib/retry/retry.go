package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ExhaustedError wraps the last failure after every attempt of an
// operation has been used up.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying. Do unwraps the marker and
// returns the original error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do re-invokes fn up to attempts times, sleeping delay*n before the
// nth retry. Automation-channel calls against the portal fail
// transiently all the time so most call sites wrap through here rather
// than carrying their own retry loops.
func Do(ctx context.Context, op string, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for n := 1; n <= attempts; n++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
		if n == attempts {
			break
		}

		slog.WarnContext(ctx, "operation failed, retrying", "op", op, "attempt", n, "err", last)

		select {
		case <-time.After(delay * time.Duration(n)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExhaustedError{Op: op, Attempts: attempts, Last: last}
}
