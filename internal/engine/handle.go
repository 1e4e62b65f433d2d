package engine

import (
	"context"
	"sync"

	"github.com/roach88/petadopt/internal/ir"
)

// Handle identifies an accepted request until its receipt is available.
//
// A Handle is completed exactly once by the apply loop. Callers may stop
// waiting on it at any time; the request is applied regardless.
type Handle struct {
	// ID is the content-addressed request id.
	ID string

	// Seq is the request's position in the apply order.
	Seq int64

	once    sync.Once
	done    chan struct{}
	receipt ir.Receipt
	err     error
}

func newHandle(id string, seq int64) *Handle {
	return &Handle{ID: id, Seq: seq, done: make(chan struct{})}
}

// complete records the outcome and releases waiters.
func (h *Handle) complete(r ir.Receipt, err error) {
	h.once.Do(func() {
		h.receipt = r
		h.err = err
		close(h.done)
	})
}

// Done returns a channel that is closed once the outcome is known.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the outcome without blocking. ok is false until the
// handle has completed.
func (h *Handle) Result() (r ir.Receipt, ok bool, err error) {
	select {
	case <-h.done:
		return h.receipt, true, h.err
	default:
		return ir.Receipt{}, false, nil
	}
}

// Wait blocks until the handle completes or ctx is cancelled.
//
// The returned error is non-nil only when no receipt exists: the request
// was never applied or the journal write failed. A request that was
// applied and reverted yields a failure receipt and a nil error.
func (h *Handle) Wait(ctx context.Context) (ir.Receipt, error) {
	select {
	case <-ctx.Done():
		return ir.Receipt{}, ctx.Err()
	case <-h.done:
		return h.receipt, h.err
	}
}

// Wait blocks until h completes or ctx is cancelled. See Handle.Wait.
func (e *Engine) Wait(ctx context.Context, h *Handle) (ir.Receipt, error) {
	return h.Wait(ctx)
}
