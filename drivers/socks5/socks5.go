package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pedramktb/go-dialx"
	"golang.org/x/net/proxy"
)

func init() {
	dialx.Register("socks5", func(params map[string]string, server bool) (dialx.Negotiator, error) {
		if server {
			return nil, errors.New("socks5: exclusive to clients")
		}
		var target, user, pass string
		for key, value := range params {
			switch key {
			case "addr":
				target = value
			case "user":
				user = value
			case "pass":
				pass = value
			default:
				return nil, fmt.Errorf("socks5: unknown parameter %q", key)
			}
		}
		if target == "" {
			return nil, fmt.Errorf("socks5: missing addr parameter")
		}
		if _, _, err := net.SplitHostPort(target); err != nil {
			return nil, fmt.Errorf("socks5: invalid addr parameter %q: %w", target, err)
		}
		var auth *proxy.Auth
		if user != "" || pass != "" {
			auth = &proxy.Auth{User: user, Password: pass}
		}
		return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
			// The conn is already open to the proxy; the CONNECT exchange for
			// target runs over it.
			s5, err := proxy.SOCKS5("tcp", c.RemoteAddr().String(), auth, fixedDialer{conn: c})
			if err != nil {
				return nil, err
			}
			if cd, ok := s5.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, "tcp", target)
			}
			return s5.Dial("tcp", target)
		}), nil
	})
}

// fixedDialer hands out the already-dialed proxy conn instead of opening a
// new one.
type fixedDialer struct {
	conn net.Conn
}

func (d fixedDialer) Dial(network, addr string) (net.Conn, error) {
	return d.conn, nil
}
