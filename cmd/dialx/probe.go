package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	dialx "github.com/pedramktb/go-dialx"
)

func probe() *cobra.Command {
	var (
		network     string
		stages      string
		timeout     time.Duration
		cancelAfter time.Duration
		resolver    string
		send        string
	)

	cmd := &cobra.Command{
		Use:   "probe <host:port>",
		Short: "Dial through a stage chain and relay stdio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			var neg dialx.DialerStages
			if stages != "" {
				if err := neg.UnmarshalText([]byte(stages)); err != nil {
					return err
				}
			}
			opts := []dialx.DialOption{}
			if resolver != "" {
				opts = append(opts, dialx.WithResolverAddr(resolver))
			}
			pc := dialx.DialStaged(ctx, network, args[0], neg.Stages, opts...)
			if cancelAfter > 0 {
				timer := time.AfterFunc(cancelAfter, pc.Cancel)
				defer timer.Stop()
			}
			if send != "" {
				// Queued before establishment on purpose; flushed once the
				// chain completes.
				go func() {
					if _, err := pc.Write([]byte(send)); err != nil {
						slog.ErrorContext(ctx, "queued write failed", "error", err.Error())
					}
				}()
			}
			conn, err := pc.Await(ctx)
			if err != nil {
				return fmt.Errorf("dial %s: %w", args[0], err)
			}
			defer conn.Close()
			slog.InfoContext(ctx, "connection established", "addr", args[0], "stages", stages)

			done := make(chan error, 1)
			go func() {
				_, err := io.Copy(conn, os.Stdin)
				done <- err
			}()
			go func() {
				_, err := io.Copy(os.Stdout, conn)
				done <- err
			}()
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	cmd.Flags().StringVar(&network, "network", "tcp", "network to dial: tcp|udp")
	cmd.Flags().StringVar(&stages, "stages", "", "negotiation stage chain, e.g. tls[servername=example.com]")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall dial+negotiation timeout")
	cmd.Flags().DurationVar(&cancelAfter, "cancel-after", 0, "cancel the attempt after this duration (testing aid)")
	cmd.Flags().StringVar(&resolver, "resolver", "", "DNS server (host:port) to resolve the target against")
	cmd.Flags().StringVar(&send, "send", "", "payload to queue before the connection is established")

	return cmd
}
