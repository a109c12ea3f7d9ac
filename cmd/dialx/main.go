package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/pedramktb/go-dialx/drivers/dtls"
	_ "github.com/pedramktb/go-dialx/drivers/socks5"
	_ "github.com/pedramktb/go-dialx/drivers/ssh"
	_ "github.com/pedramktb/go-dialx/drivers/tls"
	_ "github.com/pedramktb/go-dialx/drivers/tlspsk"
	_ "github.com/pedramktb/go-dialx/drivers/utls"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var logLevel string

	cmd := &cobra.Command{
		Use:           "dialx [command]",
		Short:         "Staged connection dialer",
		Long:          "dialx dials connections through negotiation stage chains.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
			return nil
		},
	}

	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		defaultHelp(cmd, args)
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), stagesFormat)
	})

	cmd.PersistentFlags().StringVar(&logLevel, "log", "info", "log level: debug|info|warn|error")

	cmd.AddCommand(probe())
	cmd.AddCommand(echo())

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}

const stagesFormat = `Stage chains:
  A chain is a '+'-separated list of negotiation stages applied in order on
  top of the raw connection, each with optional [key=value,...] parameters:

    tls[servername=example.com]
    tls[cert=<hex PEM>]+socks5[addr=target:443]
    ssh[pubkey=<hex authorized_key>,pass=secret]

  Available stages: tls, utls, tlspsk, dtls (udp), socks5 (client only),
  ssh. Binary parameters (keys, certificates) are hex-encoded PEM.
`
