package dialx

import (
	"context"
	"log/slog"
	"net"
	"sync"
)

// PendingConn is the handle returned by DialStaged before the connection is
// usable. The caller may queue writes, await establishment, or cancel at any
// point; exactly one terminal outcome is ever delivered. Underneath, the raw
// dial and the negotiation chain run asynchronously, linked to this handle
// through a Bridge so a cancellation can never strand a live connection.
type PendingConn struct {
	outer  *Promise[net.Conn]
	writes *WriteBuffer
	logger Logger

	mu     sync.Mutex
	bridge *Bridge
}

// DialStaged dials network/addr and runs neg on top of the raw connection
// before the returned handle resolves. The handle is returned immediately;
// ctx governs the dial and the negotiation, and cancelling it maps to the
// same teardown path as PendingConn.Cancel.
func DialStaged(ctx context.Context, network, addr string, neg Negotiator, opts ...DialOption) *PendingConn {
	cfg := &dialCfg{}
	for _, o := range opts {
		o(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	pc := &PendingConn{
		outer:  NewPromise[net.Conn](),
		writes: &WriteBuffer{},
		logger: logger,
	}
	// Any non-success outcome of the handle fails the writes queued so far;
	// writes queued while negotiation was still pending must not hang.
	pc.outer.OnComplete(func() {
		if !pc.outer.IsSuccess() {
			pc.writes.FailPending(pc.outer.Cause())
		}
	})
	go pc.establish(ctx, network, addr, neg, opts)
	return pc
}

// Done returns a channel closed once the handle is terminal.
func (pc *PendingConn) Done() <-chan struct{} { return pc.outer.Done() }

// Await blocks until the connection is established or the attempt ends,
// honoring ctx for the wait itself.
func (pc *PendingConn) Await(ctx context.Context) (net.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pc.outer.Done():
		return pc.outer.Result()
	}
}

// Conn returns the established connection, or false while pending or after a
// non-success outcome.
func (pc *PendingConn) Conn() (net.Conn, bool) {
	if !pc.outer.IsSuccess() {
		return nil, false
	}
	conn, _ := pc.outer.Result()
	return conn, true
}

// Cancel abandons the connection attempt. Before establishment it prevents
// the connection from being handed out; after establishment it degrades to
// immediate teardown of the already-negotiated connection.
func (pc *PendingConn) Cancel() {
	if pc.outer.TryCancel() {
		return
	}
	// The handle already settled; if a connection was established in the
	// meantime, the bridge tears it down.
	pc.mu.Lock()
	b := pc.bridge
	pc.mu.Unlock()
	if b != nil {
		b.OnCancelled()
	}
}

// Write queues p until the connection is established, then writes it. Once
// established it writes directly. Blocks until the write settles; a queued
// write fails with the attempt's cause if establishment does not succeed.
func (pc *PendingConn) Write(p []byte) (int, error) {
	if conn, ok := pc.Conn(); ok {
		return conn.Write(p)
	}
	w := pc.writes.Enqueue(p)
	if pc.outer.IsTerminal() {
		// Settled between the check and the enqueue; drain the queue the
		// same way the completion callbacks would have.
		if conn, ok := pc.Conn(); ok {
			_ = pc.writes.FlushTo(conn)
		} else {
			pc.writes.FailPending(pc.outer.Cause())
		}
	}
	return w.Result()
}

func (pc *PendingConn) establish(ctx context.Context, network, addr string, neg Negotiator, opts []DialOption) {
	raw, err := Dial(ctx, network, addr, opts...)
	if err != nil {
		pc.outer.TryFail(err)
		return
	}
	transport := OnceCloser(raw)

	pc.mu.Lock()
	if pc.outer.IsTerminal() {
		// Cancelled or timed out while dialing; nobody is left to own the
		// fresh connection.
		pc.mu.Unlock()
		_ = transport.Close()
		return
	}
	inner := NewPromise[net.Conn]()
	b := &Bridge{Outer: pc.outer, Inner: inner, Writes: pc.writes, Transport: transport}
	pc.bridge = b
	pc.mu.Unlock()

	b.Link()
	inner.OnComplete(func() {
		if !inner.IsSuccess() {
			return
		}
		conn, _ := inner.Result()
		if !pc.outer.TryResolve(conn) {
			// The handle settled through another path while negotiation was
			// finishing; a cancellation has already triggered teardown.
			return
		}
		if err := pc.writes.FlushTo(conn); err != nil {
			pc.logger.WarnContext(ctx, "flushing queued writes failed", "addr", addr, "error", err.Error())
		}
	})

	if inner.IsTerminal() {
		// Cancelled before the first handshake byte.
		_ = transport.Close()
		return
	}
	pc.logger.DebugContext(ctx, "starting negotiation", "addr", addr)
	conn, err := neg.Negotiate(ctx, transport)
	if err != nil {
		inner.TryFail(err)
		_ = transport.Close()
		return
	}
	if !inner.TryResolve(conn) {
		// Cancelled while the handshake was finishing; the result is
		// abandoned.
		_ = transport.Close()
	}
}
