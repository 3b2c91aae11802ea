package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/guildofsmiths/cord/pkg/model"
)

// codeErr stands in for a driver error carrying a result code.
type codeErr int

func (c codeErr) Error() string { return fmt.Sprintf("sqlite error (%d)", int(c)) }
func (c codeErr) Code() int     { return int(c) }

var fastRetry = retryConfig{maxRetries: 3, baseDelay: time.Millisecond, maxDelay: 5 * time.Millisecond}

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("syntax error"), false},
		{"busy", codeErr(sqlite3.SQLITE_BUSY), true},
		{"busy snapshot", codeErr(sqlite3.SQLITE_BUSY_SNAPSHOT), true},
		{"locked", codeErr(sqlite3.SQLITE_LOCKED), true},
		{"short read", codeErr(sqlite3.SQLITE_IOERR_SHORT_READ), true},
		{"other ioerr", codeErr(sqlite3.SQLITE_IOERR), false},
		{"constraint", codeErr(sqlite3.SQLITE_CONSTRAINT), false},
		{"wrapped busy", fmt.Errorf("insert entry x: %w", codeErr(sqlite3.SQLITE_BUSY)), true},
		{"busy text only", errors.New("database is locked (5)"), false},
		{"validation", &model.ValidationError{MessageID: "bad(5)", Field: "class", Reason: "is unknown"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientSQLiteErr(tt.err); got != tt.want {
				t.Errorf("isTransientSQLiteErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientSQLiteErr_DriverError(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, entry("m1", "A", 1, 1))

	_, err := s.db.Exec(`UPDATE entries SET payload = x'00'`)
	var se *sqlite.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *sqlite.Error, got %T: %v", err, err)
	}
	if isTransientSQLiteErr(err) {
		t.Errorf("trigger abort (code %d) classified as transient", se.Code())
	}
}

func TestRetryOp_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := retryOp(context.Background(), fastRetry, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("got err=%v calls=%d, want nil and 1", err, calls)
	}
}

func TestRetryOp_PermanentErrorReturnedUnwrapped(t *testing.T) {
	calls := 0
	want := &model.ValidationError{MessageID: "x(6)", Field: "class", Reason: "is unknown"}
	err := retryOp(context.Background(), fastRetry, func() error {
		calls++
		return want
	})
	if err != want {
		t.Errorf("got %v, want the validation error itself", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryOp_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retryOp(context.Background(), fastRetry, func() error {
		calls++
		if calls < 3 {
			return codeErr(sqlite3.SQLITE_BUSY)
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected nil after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOp_ExhaustsRetries(t *testing.T) {
	for _, n := range []uint64{0, 2} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			calls := 0
			cfg := fastRetry
			cfg.maxRetries = n
			err := retryOp(context.Background(), cfg, func() error {
				calls++
				return codeErr(sqlite3.SQLITE_LOCKED)
			})
			var rc resultCoder
			if !errors.As(err, &rc) || rc.Code() != sqlite3.SQLITE_LOCKED {
				t.Errorf("expected the last locked error, got %v", err)
			}
			if calls != int(n)+1 {
				t.Errorf("expected %d calls, got %d", n+1, calls)
			}
		})
	}
}

func TestRetryOp_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := retryConfig{maxRetries: 5, baseDelay: 50 * time.Millisecond, maxDelay: time.Second}
	err := retryOp(ctx, cfg, func() error {
		calls++
		cancel()
		return codeErr(sqlite3.SQLITE_BUSY)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call after cancellation, got %d", calls)
	}
}

func TestNewBackOff_Bounded(t *testing.T) {
	b := newBackOff(context.Background(), retryConfig{maxRetries: 2, baseDelay: 10 * time.Millisecond, maxDelay: 20 * time.Millisecond})
	b.Reset()
	for i := 0; i < 2; i++ {
		d := b.NextBackOff()
		// Randomization factor is 0.5, so the cap can be exceeded by half.
		if d <= 0 || d > 30*time.Millisecond {
			t.Errorf("attempt %d: delay %v out of range", i, d)
		}
	}
	if d := b.NextBackOff(); d != backoff.Stop {
		t.Errorf("expected Stop after max retries, got %v", d)
	}
}
