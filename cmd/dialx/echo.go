package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	dialx "github.com/pedramktb/go-dialx"
)

func echo() *cobra.Command {
	var (
		network string
		stages  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "echo <host:port>",
		Short: "Accept staged connections and echo everything back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var neg dialx.ListenerStages
			if stages != "" {
				if err := neg.UnmarshalText([]byte(stages)); err != nil {
					return err
				}
			}
			ln, err := dialx.Listen(ctx, network, args[0])
			if err != nil {
				return err
			}
			sln := dialx.NewStagedListener(ln, neg.Stages, dialx.WithNegotiateTimeout(timeout))
			go func() {
				<-ctx.Done()
				_ = sln.Close()
			}()
			slog.InfoContext(ctx, "listening", "addr", args[0], "stages", stages)
			for {
				conn, err := sln.Accept()
				if err != nil {
					if errors.Is(err, dialx.ErrListenerClosed) {
						return nil
					}
					return err
				}
				go func(c net.Conn) {
					defer c.Close()
					if _, err := io.Copy(c, c); err != nil {
						slog.WarnContext(ctx, "echo ended with error", "addr", c.RemoteAddr().String(), "error", err.Error())
					}
				}(conn)
			}
		},
	}

	cmd.Flags().StringVar(&network, "network", "tcp", "network to listen on: tcp|udp")
	cmd.Flags().StringVar(&stages, "stages", "", "server-side negotiation stage chain, e.g. tls[cert=...,key=...]")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-connection negotiation timeout")

	return cmd
}
