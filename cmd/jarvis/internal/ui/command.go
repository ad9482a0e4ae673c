package ui

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/picojarvis/cmd/jarvis/internal"
	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/server"
)

func NewUICommand() *cobra.Command {
	var (
		host  string
		port  int
		open  bool
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Run the browser console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return uiCmd(ctx, cmd, host, port, open, debug)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default JARVIS_UI_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default JARVIS_UI_PORT)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the console in a browser")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func uiCmd(ctx context.Context, cmd *cobra.Command, host string, port int, open, debug bool) error {
	cfg, err := internal.LoadConfig(debug, true)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.UIHost = host
	}
	if port != 0 {
		cfg.UIPort = port
	}

	rt, err := internal.NewRuntime(cfg, internal.RuntimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	ln, err := net.Listen("tcp", cfg.UIAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.UIAddr(), err)
	}

	url := ConsoleURL(cfg.UIHost, cfg.UIPort)
	fmt.Fprintf(cmd.OutOrStdout(), "Jarvis console at %s\n", url)
	if open {
		if err := openBrowser(url); err != nil {
			logger.WarnCF("jarvis", "Could not open browser", map[string]any{"error": err.Error()})
		}
	}
	return server.NewHTTPServer(cfg, rt.Router).Serve(ctx, ln)
}

// ConsoleURL is the address a browser should use for host and port.
func ConsoleURL(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func openBrowser(url string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	return c.Start()
}
