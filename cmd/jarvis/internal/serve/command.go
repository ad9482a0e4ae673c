package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picojarvis/cmd/jarvis/internal"
	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/server"
)

func NewServeCommand() *cobra.Command {
	var (
		debug    bool
		noHTTP   bool
		inMemory bool
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Run the command server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveCmd(ctx, debug, noHTTP, inMemory)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Do not start the HTTP console")
	cmd.Flags().BoolVar(&inMemory, "memory", false, "Keep session state in memory only")

	return cmd
}

func serveCmd(ctx context.Context, debug, noHTTP, inMemory bool) error {
	cfg, err := internal.LoadConfig(debug, true)
	if err != nil {
		return err
	}
	rt, err := internal.NewRuntime(cfg, internal.RuntimeOptions{InMemory: inMemory})
	if err != nil {
		return err
	}
	defer rt.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.NewLineServer(rt.Router, cfg.ConnIdleTimeout).ListenAndServe(ctx, cfg.ServerAddr())
	})
	if !noHTTP {
		g.Go(func() error {
			return server.NewHTTPServer(cfg, rt.Router).ListenAndServe(ctx, cfg.UIAddr())
		})
	}
	g.Go(func() error {
		if err := rt.Catalog.Watch(ctx); err != nil {
			logger.WarnCF("jarvis", "Pack overlay watcher stopped", map[string]any{"error": err.Error()})
		}
		return nil
	})

	logger.InfoCF("jarvis", "Jarvis serving", map[string]any{
		"commands": cfg.ServerAddr(),
		"http":     !noHTTP,
		"console":  cfg.UIAddr(),
	})
	err = g.Wait()
	logger.InfoC("jarvis", "Jarvis stopped")
	return err
}
