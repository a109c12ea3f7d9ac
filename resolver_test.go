package dialx_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"

	dialx "github.com/pedramktb/go-dialx"
)

// serveDNS starts a DNS server on loopback that answers every A query with
// 127.0.0.1 and returns its address.
func serveDNS(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			resp := new(dns.Msg)
			resp.SetReply(req)
			if len(req.Question) == 1 && req.Question[0].Qtype == dns.TypeA {
				resp.Answer = append(resp.Answer, &dns.A{
					Hdr: dns.RR_Header{
						Name:   req.Question[0].Name,
						Rrtype: dns.TypeA,
						Class:  dns.ClassINET,
						Ttl:    60,
					},
					A: net.IPv4(127, 0, 0, 1),
				})
			}
			_ = w.WriteMsg(resp)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDialWithResolverAddr(t *testing.T) {
	dnsAddr := serveDNS(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := acceptOne(t, ln)

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialx.Dial(ctx, "tcp", net.JoinHostPort("svc.example", port), dialx.WithResolverAddr(dnsAddr))
	if err != nil {
		t.Fatalf("dial via resolver: %v", err)
	}
	defer conn.Close()

	select {
	case server := <-accepted:
		_ = server.Close()
	case <-time.After(2 * time.Second):
		t.Fatalf("resolved dial never reached the listener")
	}
}

func TestDialResolverLiteralIPPassthrough(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	// Literal IPs must not hit the resolver at all; point it at a dead
	// address to prove it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialx.Dial(ctx, "tcp", ln.Addr().String(), dialx.WithResolverAddr("127.0.0.1:1"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close()
}
