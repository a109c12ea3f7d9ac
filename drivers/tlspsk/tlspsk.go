package tlspsk

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/pedramktb/go-dialx"
	tlswithpsk "github.com/raff/tls-ext"
	tlspsk "github.com/raff/tls-psk"
)

func init() {
	dialx.Register("tlspsk", func(params map[string]string, server bool) (dialx.Negotiator, error) {
		var identity string
		var psk []byte
		for key, value := range params {
			switch key {
			case "key":
				var err error
				psk, err = hex.DecodeString(value)
				if err != nil {
					return nil, fmt.Errorf("tlspsk: invalid key parameter: %w", err)
				}
			case "identity":
				identity = value
			default:
				return nil, fmt.Errorf("tlspsk: unknown parameter %q", key)
			}
		}
		if len(psk) == 0 {
			return nil, fmt.Errorf("tlspsk: missing key parameter")
		}
		if !server && identity == "" {
			return nil, fmt.Errorf("tlspsk: client requires identity parameter")
		}
		cfg := &tlswithpsk.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS12,
			Extra: tlspsk.PSKConfig{
				GetIdentity: func() string { return identity },
				GetKey:      func(identity string) ([]byte, error) { return psk, nil },
			},
			CipherSuites:       []uint16{tlspsk.TLS_PSK_WITH_AES_256_CBC_SHA},
			InsecureSkipVerify: true,
		}
		if server {
			// The tls-ext server path insists on a certificate even for PSK
			// suites; hand it a throwaway one.
			certs, err := dummyCert()
			if err != nil {
				return nil, fmt.Errorf("tlspsk: generate placeholder certificate: %w", err)
			}
			cfg.Certificates = certs
			return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
				return handshake(ctx, tlswithpsk.Server(c, cfg))
			}), nil
		}
		return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
			return handshake(ctx, tlswithpsk.Client(c, cfg))
		}), nil
	})
}

// handshake drives the tls-ext handshake, mapping ctx onto a conn deadline
// since the fork predates HandshakeContext.
func handshake(ctx context.Context, c *tlswithpsk.Conn) (net.Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}
	if err := c.Handshake(); err != nil {
		return nil, err
	}
	if err := c.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return c, nil
}

func dummyCert() ([]tlswithpsk.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tlspsk"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	cert, err := tlswithpsk.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	)
	if err != nil {
		return nil, err
	}
	return []tlswithpsk.Certificate{cert}, nil
}
