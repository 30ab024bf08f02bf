package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/editledger/internal/store"
)

const retryInitialInterval = 10 * time.Millisecond

// withRetry runs attempt until it succeeds, fails permanently, or the retry
// budget is spent. Only concurrent modification is retried: lock contention
// and records that changed underneath the attempt.
func (l *Ledger) withRetry(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, l.txTimeout)
		defer cancel()

		err := attempt(attemptCtx)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() == nil && retryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(l.maxRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			txRetriesTotal.Inc()
			l.logger.Debug("retrying ledger transaction", "op", op, "error", err, "backoff", next)
		}),
	)
	return err
}

func retryable(err error) bool {
	return store.IsBusy(err) || errors.Is(err, store.ErrConflict)
}

// classify maps store and driver errors onto ledger error codes.
// Ledger errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	switch {
	case errors.Is(err, store.ErrConflict), store.IsBusy(err):
		return &Error{Code: ErrCodeConcurrentModification, Message: "record changed concurrently", Err: err}
	case errors.Is(err, store.ErrNotFound):
		return &Error{Code: ErrCodeNotFound, Message: "not found", Err: err}
	default:
		return &Error{Code: ErrCodeStorage, Message: "storage failure", Err: err}
	}
}
