package dialx

import (
	"context"
	"net"
)

// Negotiator runs an extra protocol exchange (e.g. a TLS handshake or a
// proxy CONNECT) on top of an already-open connection and returns the
// connection to use once the exchange finished. Implementations must honor
// ctx cancellation and must not retain conn on error; the caller owns closing
// the underlying transport when negotiation does not complete.
type Negotiator interface {
	Negotiate(ctx context.Context, conn net.Conn) (net.Conn, error)
}

// NegotiatorFunc adapts a function to the Negotiator interface.
type NegotiatorFunc func(ctx context.Context, conn net.Conn) (net.Conn, error)

func (f NegotiatorFunc) Negotiate(ctx context.Context, conn net.Conn) (net.Conn, error) {
	return f(ctx, conn)
}

// Chain combines negotiators into one that applies them in order, each stage
// receiving the conn produced by the previous one.
func Chain(stages ...Negotiator) Negotiator {
	return NegotiatorFunc(func(ctx context.Context, conn net.Conn) (net.Conn, error) {
		var err error
		for _, s := range stages {
			conn, err = s.Negotiate(ctx, conn)
			if err != nil {
				return nil, err
			}
		}
		return conn, nil
	})
}
