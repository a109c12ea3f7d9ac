package dialx

import (
	"net"
	"sync/atomic"
)

type onceCloseConn struct {
	net.Conn
	closed atomic.Bool
}

// OnceCloser wraps a conn so that Close is idempotent: the first call closes
// the underlying conn, later calls return nil. The negotiation bridge and the
// negotiator may both request closure of the same transport; neither must
// surface a double-close error to the caller.
func OnceCloser(c net.Conn) net.Conn {
	return &onceCloseConn{Conn: c}
}

func (c *onceCloseConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.Conn.Close()
}
