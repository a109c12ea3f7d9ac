package dialx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var ErrListenerClosed = errors.New("dialx: listener is closed")

// StagedListener runs a server-side negotiation chain on every accepted
// connection before handing it to the caller. Connections whose negotiation
// fails are closed and logged, and Accept moves on to the next one. Accepted
// connections are tracked so Close tears down everything still alive.
type StagedListener struct {
	net.Listener
	logger  Logger
	neg     Negotiator
	timeout time.Duration

	closing atomic.Bool
	mu      sync.Mutex
	conns   map[*trackedConn]struct{}
}

type StagedListenerOption func(*StagedListener)

// WithNegotiateTimeout bounds the per-connection negotiation time.
// Default is 10 seconds.
func WithNegotiateTimeout(d time.Duration) StagedListenerOption {
	return func(sl *StagedListener) {
		sl.timeout = d
	}
}

func WithListenerLogger(l Logger) StagedListenerOption {
	return func(sl *StagedListener) {
		sl.logger = l
	}
}

func NewStagedListener(ln net.Listener, neg Negotiator, opts ...StagedListenerOption) *StagedListener {
	sl := &StagedListener{
		Listener: ln,
		logger:   slog.Default(),
		neg:      neg,
		timeout:  10 * time.Second,
		conns:    make(map[*trackedConn]struct{}),
	}
	for _, opt := range opts {
		opt(sl)
	}
	return sl
}

func (sl *StagedListener) Accept() (net.Conn, error) {
	for {
		raw, err := sl.Listener.Accept()
		if err != nil {
			if sl.closing.Load() {
				return nil, ErrListenerClosed
			}
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), sl.timeout)
		conn, err := sl.neg.Negotiate(ctx, OnceCloser(raw))
		cancel()
		if err != nil {
			_ = raw.Close()
			sl.logger.WarnContext(ctx, "negotiation with peer failed", "addr", raw.RemoteAddr().String(), "error", err.Error())
			continue
		}
		tc := &trackedConn{Conn: conn, sl: sl}
		sl.mu.Lock()
		if sl.closing.Load() {
			sl.mu.Unlock()
			_ = conn.Close()
			return nil, ErrListenerClosed
		}
		sl.conns[tc] = struct{}{}
		sl.mu.Unlock()
		return tc, nil
	}
}

func (sl *StagedListener) Close() error {
	if !sl.closing.CompareAndSwap(false, true) {
		return nil
	}
	err := sl.Listener.Close()
	sl.mu.Lock()
	for tc := range sl.conns {
		if cErr := tc.Conn.Close(); cErr != nil {
			err = errors.Join(err, cErr)
		}
		delete(sl.conns, tc)
	}
	sl.mu.Unlock()
	return err
}

type trackedConn struct {
	net.Conn
	sl   *StagedListener
	once sync.Once
}

func (tc *trackedConn) Close() error {
	tc.once.Do(func() {
		tc.sl.mu.Lock()
		delete(tc.sl.conns, tc)
		tc.sl.mu.Unlock()
	})
	return tc.Conn.Close()
}
