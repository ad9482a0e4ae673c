package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sipeed/picojarvis/pkg/logger"
)

const (
	ShellDisabledMessage = "error: shell disabled (set JARVIS_ALLOW_SHELL=1)"

	defaultCommandTimeout = 120 * time.Second
	maxCommandOutput      = 10000
)

// ExecTool runs shell commands. It stays registered when disabled so the
// model gets an explicit refusal instead of an unknown tool.
type ExecTool struct {
	enabled bool
}

func NewExecTool(enabled bool) *ExecTool {
	return &ExecTool{enabled: enabled}
}

func (t *ExecTool) Name() string { return "run_command" }

func (t *ExecTool) Description() string {
	return "Run a shell command and return its combined stdout and stderr. Requires JARVIS_ALLOW_SHELL=1."
}

func (t *ExecTool) Parameters() map[string]any {
	return schema(map[string]any{
		"command": prop("string", "The shell command to execute"),
		"cwd":     prop("string", "Optional working directory"),
		"timeout": prop("integer", "Timeout in seconds. Defaults to 120."),
	}, "command")
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	if !t.enabled {
		return &ToolResult{ForLLM: ShellDisabledMessage, IsError: true}
	}
	command := stringArg(args, "command", "")
	if command == "" {
		return ErrorResult("command is required")
	}
	timeout := defaultCommandTimeout
	if secs := intArg(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	if cwd := stringArg(args, "cwd", ""); cwd != "" {
		dir, err := resolvePath(cwd)
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	startInOwnGroup(cmd)

	if err := cmd.Start(); err != nil {
		return ErrorResult(fmt.Sprintf("failed to start command: %v", err)).WithError(err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-waitCh:
	case <-timer.C:
		t.kill(cmd, waitCh)
		return ErrorResult(fmt.Sprintf("command timed out after %v", timeout))
	case <-ctx.Done():
		t.kill(cmd, waitCh)
		return ErrorResult(fmt.Sprintf("command aborted: %v", ctx.Err())).WithError(ctx.Err())
	}

	output := strings.TrimSpace(stdout.String() + "\n" + stderr.String())
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return ErrorResult(fmt.Sprintf("command failed: %v", err)).WithError(err)
		}
		output = strings.TrimSpace(output + fmt.Sprintf("\nexit code: %d", exitErr.ExitCode()))
	}
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput] + fmt.Sprintf("\n... (truncated, %d more chars)", len(output)-maxCommandOutput)
	}
	return NewToolResult(output)
}

func (t *ExecTool) kill(cmd *exec.Cmd, waitCh <-chan error) {
	if err := killGroup(cmd); err != nil {
		logger.WarnCF("tool", "Failed to kill command", map[string]any{"error": err.Error()})
	}
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
	}
}
