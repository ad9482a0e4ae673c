// PicoJarvis - personal automation assistant
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/picojarvis/cmd/jarvis/internal/run"
	"github.com/sipeed/picojarvis/cmd/jarvis/internal/send"
	"github.com/sipeed/picojarvis/cmd/jarvis/internal/serve"
	"github.com/sipeed/picojarvis/cmd/jarvis/internal/ui"
	"github.com/sipeed/picojarvis/cmd/jarvis/internal/version"
)

func NewJarvisCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "jarvis",
		Short:         "Personal automation assistant",
		Long:          "Jarvis answers commands over a local socket and a browser console, using a local model or a hosted agent with desktop tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serve.NewServeCommand(),
		ui.NewUICommand(),
		send.NewSendCommand(),
		run.NewRunCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	if err := NewJarvisCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
