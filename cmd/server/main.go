// Package main is the chat server entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/tcpchat/internal/console"
	"github.com/Tyrowin/tcpchat/internal/logging"
	"github.com/Tyrowin/tcpchat/internal/server"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

func newRootCmd() *cobra.Command {
	cfg := server.NewConfigFromEnv()
	_, addressFromEnv := os.LookupEnv("CHAT_ADDRESS")
	_, portFromEnv := os.LookupEnv("CHAT_PORT")

	cmd := &cobra.Command{
		Use:          "chat-server",
		Short:        "Starts the chat room server.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.SetLogger(cfg.LogLevel)
			fmt.Fprintln(cmd.OutOrStdout(), "Chat Room Server")
			fmt.Fprintln(cmd.OutOrStdout(), "****************************************")

			prompter := console.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			if !addressFromEnv && !cmd.Flags().Changed("address") {
				address, err := prompter.IPAddress()
				if err != nil {
					return err
				}
				cfg.Address = address
			}
			if !portFromEnv && !cmd.Flags().Changed("port") {
				port, err := prompter.Port()
				if err != nil {
					return err
				}
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.ListenAndServe(ctx, *cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Address, "address", cfg.Address, "IPv4 address to bind (env: CHAT_ADDRESS)")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to bind (env: CHAT_PORT)")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for credential and message files (env: CHAT_DATA_DIR)")
	flags.StringVar(&cfg.WebSocketAddr, "ws-addr", cfg.WebSocketAddr, "Address for the WebSocket gateway, empty to disable (env: CHAT_WS_ADDR)")
	flags.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Maximum concurrent connections, 0 for no limit (env: CHAT_MAX_SESSIONS)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: trace, debug, info, warn, error (env: CHAT_LOG_LEVEL)")
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger.WithError(err).Error("chat server failed")
		os.Exit(1)
	}
}
