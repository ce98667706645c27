package watch

import (
	"context"
	"errors"
	"time"
)

// Capability interfaces watchers are constructed with. The sqlite store
// satisfies all of them; tests substitute small fakes.

// Recorder answers identity-key existence checks for source-side dedup.
type Recorder interface {
	IsSeen(ctx context.Context, k Key) (bool, error)
}

// Cursor exposes a watcher's last successful check time, used as a
// "fetch since" lower bound.
type Cursor interface {
	LastSuccessful(ctx context.Context, name string) (time.Time, bool, error)
}

// TokenCache holds the single cached bearer credential.
type TokenCache interface {
	CachedToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
}

// transientError marks a failure as transient I/O, eligible for retry.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable by a watcher.
// Parsing and schema failures are never marked; they must not be retried.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
