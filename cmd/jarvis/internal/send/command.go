package send

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/picojarvis/cmd/jarvis/internal"
	"github.com/sipeed/picojarvis/pkg/server"
)

const defaultTimeout = 150 * time.Second

// The socket takes one command per line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func NewSendCommand() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a command to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := internal.LoadConfig(false, false)
				if err != nil {
					return err
				}
				addr = cfg.ServerAddr()
			}
			return sendCmd(cmd.Context(), cmd.OutOrStdout(), addr, strings.Join(args, " "), timeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server address (default JARVIS_SERVER_HOST:JARVIS_SERVER_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultTimeout, "How long to wait for the reply")

	return cmd
}

func sendCmd(ctx context.Context, out io.Writer, addr, message string, timeout time.Duration) error {
	message = strings.TrimSpace(lineBreaks.Replace(message))
	if message == "" {
		return fmt.Errorf("empty message")
	}
	reply, err := server.Send(ctx, addr, message, timeout)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	_, err = fmt.Fprintln(out, reply)
	return err
}
