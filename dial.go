package dialx

import (
	"context"
	"net"
	"strings"

	pudp "github.com/pion/transport/v3/udp"
)

type listenCfg struct {
	net.ListenConfig
	packet pudp.ListenConfig
}

type ListenOption func(*listenCfg)

func WithListenConfig(cfg net.ListenConfig) ListenOption {
	return func(lc *listenCfg) {
		lc.ListenConfig = cfg
	}
}

func WithPacketListenConfig(cfg pudp.ListenConfig) ListenOption {
	return func(lc *listenCfg) {
		lc.packet = cfg
	}
}

func Listen(ctx context.Context, network, addr string, opts ...ListenOption) (net.Listener, error) {
	cfg := &listenCfg{}
	for _, o := range opts {
		o(cfg)
	}
	switch strings.Split(network, ":")[0] {
	case "udp", "udp4", "udp6":
		uaddr, err := net.ResolveUDPAddr(network, addr)
		if err != nil {
			return nil, err
		}
		return cfg.packet.Listen(network, uaddr)
	default:
		return cfg.Listen(ctx, network, addr)
	}
}

type dialCfg struct {
	net.Dialer
	resolverAddr string
	logger       Logger
}

type DialOption func(*dialCfg)

func WithDialConfig(cfg net.Dialer) DialOption {
	return func(dc *dialCfg) {
		dc.Dialer = cfg
	}
}

// WithLogger sets the logger used by staged dials. Defaults to
// slog.Default().
func WithLogger(l Logger) DialOption {
	return func(dc *dialCfg) {
		dc.logger = l
	}
}

// WithResolverAddr resolves the target host against an explicit DNS server
// (host:port) instead of the system resolver before dialing.
func WithResolverAddr(server string) DialOption {
	return func(dc *dialCfg) {
		dc.resolverAddr = server
	}
}

func Dial(ctx context.Context, network, addr string, opts ...DialOption) (net.Conn, error) {
	cfg := &dialCfg{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.resolverAddr != "" {
		var err error
		addr, err = resolveAddr(ctx, cfg.resolverAddr, addr)
		if err != nil {
			return nil, err
		}
	}
	return cfg.DialContext(ctx, network, addr)
}
