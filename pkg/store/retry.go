// retry.go retries store writes that hit lock contention.
//
// WAL-mode SQLite shared between a sync worker, a relay and the CLI can
// return SQLITE_BUSY, SQLITE_LOCKED or IOERR_SHORT_READ (522) even with
// busy_timeout set. Those are retried with exponential backoff; every
// other failure, including validation errors, is returned at once.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// defaultRetryConfig is used for all store write operations.
var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// resultCoder is implemented by driver errors that carry an SQLite result
// code, such as *sqlite.Error.
type resultCoder interface {
	Code() int
}

var _ resultCoder = (*sqlite.Error)(nil)

// isTransientSQLiteErr reports whether err carries a result code that a
// retry can clear. Only the code is consulted; message text may embed
// caller-supplied ids.
func isTransientSQLiteErr(err error) bool {
	var rc resultCoder
	if !errors.As(err, &rc) {
		return false
	}
	code := rc.Code()
	switch {
	case code == sqlite3.SQLITE_IOERR_SHORT_READ:
		return true
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// newBackOff builds the retry schedule for cfg, bounded by ctx.
func newBackOff(ctx context.Context, cfg retryConfig) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.baseDelay
	eb.MaxInterval = cfg.maxDelay
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, cfg.maxRetries), ctx)
}

// retryOp runs fn until it succeeds, fails with a non-transient error or
// the retries in cfg run out. When ctx ends between attempts the context
// error is returned.
func retryOp(ctx context.Context, cfg retryConfig, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransientSQLiteErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}, newBackOff(ctx, cfg))
}
