package dialx

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// resolveAddr resolves the host part of addr against the given DNS server.
// Literal IP addresses pass through unchanged. A records are preferred over
// AAAA records.
func resolveAddr(ctx context.Context, server, addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("dialx: invalid address %q: %w", addr, err)
	}
	if net.ParseIP(host) != nil {
		return addr, nil
	}

	client := new(dns.Client)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err != nil {
			return "", fmt.Errorf("dialx: resolve %q via %s: %w", host, server, err)
		}
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				return net.JoinHostPort(rec.A.String(), port), nil
			case *dns.AAAA:
				return net.JoinHostPort(rec.AAAA.String(), port), nil
			}
		}
	}
	return "", fmt.Errorf("dialx: no address for %q via %s", host, server)
}
