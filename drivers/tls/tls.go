package tls

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net"

	"github.com/pedramktb/go-dialx"
)

func init() {
	dialx.Register("tls", func(params map[string]string, server bool) (dialx.Negotiator, error) {
		var certKey, cert []byte
		cfg := &tls.Config{
			MinVersion: tls.VersionTLS13,
			MaxVersion: tls.VersionTLS13,
		}
		for key, value := range params {
			switch key {
			case "key":
				var err error
				certKey, err = hex.DecodeString(value)
				if err != nil {
					return nil, fmt.Errorf("tls: invalid key parameter: %w", err)
				}
			case "cert":
				var err error
				cert, err = hex.DecodeString(value)
				if err != nil {
					return nil, fmt.Errorf("tls: invalid cert parameter: %w", err)
				}
			case "servername":
				cfg.ServerName = value
			default:
				return nil, fmt.Errorf("tls: unknown parameter %q", key)
			}
		}
		if server {
			if cert == nil || certKey == nil {
				return nil, fmt.Errorf("tls: server requires cert and key parameters")
			}
			certificate, err := tls.X509KeyPair(cert, certKey)
			if err != nil {
				return nil, fmt.Errorf("tls: invalid certificate: %w", err)
			}
			cfg.Certificates = []tls.Certificate{certificate}
			return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
				tc := tls.Server(c, cfg)
				if err := tc.HandshakeContext(ctx); err != nil {
					return nil, err
				}
				return tc, nil
			}), nil
		}
		if certKey != nil {
			return nil, fmt.Errorf("tls: client does not support key parameter")
		}
		if cert != nil {
			var err error
			cfg.InsecureSkipVerify = true
			cfg.VerifyPeerCertificate, err = spkiVerifier(cert)
			if err != nil {
				return nil, fmt.Errorf("tls: invalid cert parameter: %w", err)
			}
		}
		if cfg.ServerName == "" && cert == nil {
			return nil, fmt.Errorf("tls: client requires servername or cert parameter")
		}
		return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
			tc := tls.Client(c, cfg)
			if err := tc.HandshakeContext(ctx); err != nil {
				return nil, err
			}
			return tc, nil
		}), nil
	})
}

func spkiVerifier(certPEM []byte) (func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("tls: invalid PEM certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("tls: parse x509 certificate: %w", err)
	}
	spkiHash := sha256.New().Sum(cert.RawSubjectPublicKeyInfo)
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		for _, rawCert := range rawCerts {
			c, err := x509.ParseCertificate(rawCert)
			if err != nil {
				return fmt.Errorf("parse peer cert: %w", err)
			}
			if bytes.Equal(sha256.New().Sum(c.RawSubjectPublicKeyInfo), spkiHash) {
				return nil
			}
		}
		return fmt.Errorf("no matching SPKI found")
	}, nil
}
