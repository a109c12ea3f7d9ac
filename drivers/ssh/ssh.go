package ssh

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/pedramktb/go-dialx"
	"golang.org/x/crypto/ssh"
)

func init() {
	dialx.Register("ssh", func(params map[string]string, server bool) (dialx.Negotiator, error) {
		var pass string
		var sshkey ssh.Signer // host key for server, private key for client
		var pubkey ssh.PublicKey
		for key, value := range params {
			switch key {
			case "pass":
				pass = value
			case "key":
				pemkey, err := hex.DecodeString(value)
				if err != nil {
					return nil, fmt.Errorf("ssh: invalid key parameter: %w", err)
				}
				sshkey, err = ssh.ParsePrivateKey(pemkey)
				if err != nil {
					return nil, fmt.Errorf("ssh: invalid private key: %w", err)
				}
			case "pubkey":
				azkey, err := hex.DecodeString(value)
				if err != nil {
					return nil, fmt.Errorf("ssh: invalid pubkey parameter: %w", err)
				}
				pubkey, _, _, _, err = ssh.ParseAuthorizedKey(azkey)
				if err != nil {
					return nil, fmt.Errorf("ssh: invalid public key: %w", err)
				}
			default:
				return nil, fmt.Errorf("ssh: unknown parameter %q", key)
			}
		}
		if server {
			cfg := &ssh.ServerConfig{}
			if sshkey == nil {
				return nil, fmt.Errorf("ssh: server requires key parameter")
			}
			cfg.AddHostKey(sshkey)
			if pubkey != nil {
				cfg.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
					if bytes.Equal(key.Marshal(), pubkey.Marshal()) {
						return nil, nil
					}
					return nil, fmt.Errorf("ssh: public key mismatch")
				}
			}
			if pass != "" {
				cfg.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
					if pass == string(password) {
						return nil, nil
					}
					return nil, fmt.Errorf("ssh: password mismatch")
				}
			}
			if cfg.PublicKeyCallback == nil && cfg.PasswordCallback == nil {
				return nil, fmt.Errorf("ssh: server requires pubkey or pass parameter")
			}
			return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
				return newServerConn(ctx, c, cfg)
			}), nil
		}
		cfg := &ssh.ClientConfig{}
		if pubkey == nil {
			return nil, fmt.Errorf("ssh: client requires pubkey parameter")
		}
		cfg.HostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if bytes.Equal(key.Marshal(), pubkey.Marshal()) {
				return nil
			}
			return fmt.Errorf("ssh: host key mismatch")
		}
		if sshkey != nil {
			cfg.Auth = append(cfg.Auth, ssh.PublicKeys(sshkey))
		}
		if pass != "" {
			cfg.Auth = append(cfg.Auth, ssh.Password(pass))
		}
		if len(cfg.Auth) == 0 {
			return nil, fmt.Errorf("ssh: client requires key or pass parameter")
		}
		return dialx.NegotiatorFunc(func(ctx context.Context, c net.Conn) (net.Conn, error) {
			return newClientConn(ctx, c, cfg)
		}), nil
	})
}
