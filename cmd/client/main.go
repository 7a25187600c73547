// Package main is the chat client entrypoint.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/tcpchat/internal/client"
	"github.com/Tyrowin/tcpchat/internal/console"
	"github.com/Tyrowin/tcpchat/internal/logging"
	"github.com/Tyrowin/tcpchat/internal/protocol"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

type options struct {
	address  string
	port     int
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := options{logLevel: "warn"}

	cmd := &cobra.Command{
		Use:          "chat-client",
		Short:        "Joins a chat room server.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.SetLogger(opts.logLevel)
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.address, "address", "", "Server IPv4 address, prompted when empty")
	flags.IntVar(&opts.port, "port", 0, "Server port, prompted when zero")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: trace, debug, info, warn, error")
	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	out := cmd.OutOrStdout()
	prompter := console.NewPrompter(cmd.InOrStdin(), out)
	fmt.Fprintln(out, "Chat Room Client")
	fmt.Fprintln(out, "****************************************")

	if opts.address == "" {
		address, err := prompter.IPAddress()
		if err != nil {
			return err
		}
		opts.address = address
	}
	if opts.port == 0 {
		port, err := prompter.Port()
		if err != nil {
			return err
		}
		opts.port = port
	}

	c, err := client.Dial(cmd.Context(), net.JoinHostPort(opts.address, strconv.Itoa(opts.port)))
	if err != nil {
		return err
	}
	defer c.Close()

	if err := login(c, prompter, out); err != nil {
		return err
	}

	received := make(chan error, 1)
	go func() {
		for {
			message, err := c.Receive()
			if err != nil {
				received <- err
				return
			}
			fmt.Fprintln(out, message)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := prompter.Line()
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	fmt.Fprintln(out, "Write your message or write 'quit' in order to close the client. "+
		"Any message with more than 200 characters will be cropped.")
	for {
		select {
		case err := <-received:
			return errors.Wrap(err, "chat room server is down")
		case line, ok := <-lines:
			if !ok || line == protocol.Quit {
				fmt.Fprintln(out, "See you next time!")
				return c.Quit()
			}
			if err := c.Send(line); err != nil {
				return err
			}
		}
	}
}

func login(c *client.Client, prompter *console.Prompter, out io.Writer) error {
	for {
		username, password, err := prompter.Credentials()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Server : please wait while we validate your credentials.")

		result, err := c.Login(username, password)
		if err == nil {
			fmt.Fprintln(out, result.Status)
			fmt.Fprintln(out, protocol.HistoryBlock(result.History))
			return nil
		}
		if !errors.Is(err, client.ErrRejected) {
			return err
		}
		fmt.Fprintln(out, result.Status)
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger.WithError(err).Error("chat client failed")
		os.Exit(1)
	}
}
