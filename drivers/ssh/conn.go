/*
The ssh stage tunnels the connection over a secure SSH session. It performs
the SSH handshake (client or server) on the underlying connection and opens a
"direct-tcpip" channel that becomes the negotiated conn. The x/crypto/ssh
handshake has no context support, so the stage maps the context deadline onto
the underlying conn for the duration of the handshake.
*/

package ssh

import (
	"context"
	"errors"
	"net"
	"time"

	ssh "golang.org/x/crypto/ssh"
)

type sshConn struct {
	ssh.Channel
	sshConn ssh.Conn
	bc      net.Conn
}

func newServerConn(ctx context.Context, conn net.Conn, cfg *ssh.ServerConfig) (net.Conn, error) {
	restore, err := applyDeadline(ctx, conn)
	if err != nil {
		return nil, err
	}
	svConn, sshChans, sshReqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return nil, err
	}
	go ssh.DiscardRequests(sshReqs)
	for newCh := range sshChans {
		switch newCh.ChannelType() {
		case "direct-tcpip":
			ch, reqs, err := newCh.Accept()
			if err != nil {
				_ = svConn.Close()
				return nil, err
			}
			go ssh.DiscardRequests(reqs)
			if err := restore(); err != nil {
				_ = svConn.Close()
				return nil, err
			}
			return &sshConn{Channel: ch, sshConn: svConn, bc: conn}, nil
		default:
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			return nil, errors.New("no supported ssh channel opened by client")
		}
	}
	_ = svConn.Close()
	return nil, errors.New("no ssh channel opened by client")
}

func newClientConn(ctx context.Context, bc net.Conn, cfg *ssh.ClientConfig) (net.Conn, error) {
	restore, err := applyDeadline(ctx, bc)
	if err != nil {
		return nil, err
	}
	clConn, _, sshReqs, err := ssh.NewClientConn(bc, "", cfg)
	if err != nil {
		return nil, err
	}
	go ssh.DiscardRequests(sshReqs)
	ch, reqs, err := clConn.OpenChannel("direct-tcpip", nil)
	if err != nil {
		_ = clConn.Close()
		return nil, err
	}
	go ssh.DiscardRequests(reqs)
	if err := restore(); err != nil {
		_ = clConn.Close()
		return nil, err
	}
	return &sshConn{Channel: ch, sshConn: clConn, bc: bc}, nil
}

func applyDeadline(ctx context.Context, conn net.Conn) (restore func() error, err error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return func() error { return nil }, nil
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	return func() error { return conn.SetDeadline(time.Time{}) }, nil
}

func (c *sshConn) CloseWrite() error {
	err := c.Channel.CloseWrite()
	if bcCloseWrite, ok := c.bc.(interface{ CloseWrite() error }); ok {
		err = errors.Join(err, bcCloseWrite.CloseWrite())
	}
	return err
}

func (c *sshConn) Close() error {
	return errors.Join(c.Channel.Close(), c.sshConn.Close())
}

func (c *sshConn) LocalAddr() net.Addr                { return c.sshConn.LocalAddr() }
func (c *sshConn) RemoteAddr() net.Addr               { return c.sshConn.RemoteAddr() }
func (c *sshConn) SetDeadline(t time.Time) error      { return c.bc.SetDeadline(t) }
func (c *sshConn) SetReadDeadline(t time.Time) error  { return c.bc.SetReadDeadline(t) }
func (c *sshConn) SetWriteDeadline(t time.Time) error { return c.bc.SetWriteDeadline(t) }
