package reconcile

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// ServeOptions configures Serve.
type ServeOptions struct {
	// Parallel bounds concurrent rounds. Defaults to 1.
	Parallel int

	// Retries is how many times a failed round is retried with exponential
	// backoff before the peer is dropped. Zero means no retry.
	Retries uint64

	// RetryInterval is the initial backoff interval. Defaults to 500ms.
	RetryInterval time.Duration

	// OnResult, if set, receives the outcome of every round.
	OnResult func(Result, error)
}

// Serve reconciles with each peer that arrives on the channel until ctx is
// done or the channel is closed. Peers appear whenever connectivity
// happens to exist; there is no schedule. Serve waits for in-flight rounds
// before returning. It returns nil when the channel is closed, ctx.Err()
// otherwise.
func (e *Engine) Serve(ctx context.Context, arrivals <-chan Peer, opts ServeOptions) error {
	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}

	var g errgroup.Group
	g.SetLimit(opts.Parallel)
	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-arrivals:
			if !ok {
				return nil
			}
			g.Go(func() error {
				res, err := e.reconcileWithRetry(ctx, p, opts)
				if err != nil {
					e.log.Warn("round failed", "peer", p.ID(), "error", err)
				}
				if opts.OnResult != nil {
					opts.OnResult(res, err)
				}
				return nil
			})
		}
	}
}

func (e *Engine) reconcileWithRetry(ctx context.Context, p Peer, opts ServeOptions) (Result, error) {
	var res Result
	op := func() error {
		var err error
		res, err = e.Reconcile(ctx, p)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.RetryInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, opts.Retries), ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		e.log.Debug("retrying round", "peer", p.ID(), "wait", wait, "error", err)
	})
	return res, err
}
