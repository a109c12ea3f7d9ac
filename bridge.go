package dialx

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
)

// ErrConnClosedByCancel is the cause delivered to buffered writes when a
// connection was cancelled by the caller after negotiation had already
// succeeded. It is distinct from any negotiation failure cause so callers can
// tell "you cancelled" apart from "negotiation failed".
var ErrConnClosedByCancel = errors.New("dialx: connection cancelled")

// Bridge links the caller-visible connection promise (outer) to the
// completion future of a negotiation stage running on top of an already-open
// transport (inner). It propagates cancellation from outer to inner and
// failure from inner to outer, and resolves the race where a cancellation
// arrives after negotiation already produced a live connection: the conn must
// be torn down and pending writes failed rather than leaked.
//
// Success is deliberately not propagated here; the layer that owns the dial
// resolves outer when inner succeeds without a prior cancellation.
type Bridge struct {
	Outer     *Promise[net.Conn]
	Inner     *Promise[net.Conn]
	Writes    *WriteBuffer
	Transport io.Closer

	torn atomic.Bool // teardown runs at most once
}

// Link registers both propagation rules on the two promises. Call once,
// before or after either promise is terminal; registration on an already
// terminal promise runs the rule immediately.
func (b *Bridge) Link() {
	b.Outer.OnComplete(func() {
		if b.Outer.IsCancelled() {
			b.OnCancelled()
		}
	})
	b.Inner.OnComplete(b.onInnerDone)
}

// OnCancelled propagates a caller-side cancellation to the negotiation
// stage. It is invoked by Link when the outer promise transitions to
// cancelled, and may also be invoked directly when the caller gives up after
// the outer promise is already terminal (e.g. cancel after establishment).
//
// If the inner future can still be cancelled, negotiation is aborted and the
// negotiator owns cleanup of the transport. If it cannot because negotiation
// already succeeded, the connection is live with nobody left to use it:
// buffered writes are failed with ErrConnClosedByCancel and the transport is
// closed. An inner future that already failed or was already cancelled needs
// no action here. Safe to invoke repeatedly.
func (b *Bridge) OnCancelled() {
	if b.Inner.TryCancel() {
		return
	}
	if b.Inner.IsSuccess() {
		if !b.torn.CompareAndSwap(false, true) {
			return
		}
		b.Writes.FailPending(ErrConnClosedByCancel)
		_ = b.Transport.Close()
	}
}

// onInnerDone propagates a negotiation failure to the outer promise. A
// cancelled inner future is ignored: it is always the direct result of
// OnCancelled, which already settled the outcome. A succeeded inner future
// is ignored too; the owning layer resolves outer on success. The TryFail
// tolerates an outer promise that is already terminal through another path,
// such as a connect timeout.
func (b *Bridge) onInnerDone() {
	if !b.Inner.IsFailed() {
		return
	}
	b.Outer.TryFail(b.Inner.Cause())
}
