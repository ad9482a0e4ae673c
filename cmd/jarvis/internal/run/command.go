package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sipeed/picojarvis/cmd/jarvis/internal"
	"github.com/sipeed/picojarvis/pkg/server"
)

const prompt = "Command: "

func NewRunCommand() *cobra.Command {
	var (
		debug    bool
		inMemory bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCmd(cmd.Context(), debug, inMemory)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&inMemory, "memory", false, "Keep session state in memory only")

	return cmd
}

func runCmd(ctx context.Context, debug, inMemory bool) error {
	cfg, err := internal.LoadConfig(debug, true)
	if err != nil {
		return err
	}
	rt, err := internal.NewRuntime(cfg, internal.RuntimeOptions{InMemory: inMemory})
	if err != nil {
		return err
	}
	defer rt.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".jarvis_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	return repl(ctx, rt.Router, rl, rl.Stdout())
}

// LineReader yields one line per call and io.EOF or
// readline.ErrInterrupt when input ends.
type LineReader interface {
	Readline() (string, error)
}

func repl(ctx context.Context, h server.CommandHandler, in LineReader, out io.Writer) error {
	for {
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nExiting.")
				return nil
			}
			return err
		}

		command := strings.TrimSpace(line)
		switch command {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Exiting.")
			return nil
		}
		fmt.Fprintln(out, h.Handle(ctx, command))
	}
}
