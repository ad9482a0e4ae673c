// PicoJarvis - personal automation assistant
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/providers"
	"github.com/sipeed/picojarvis/pkg/tools"
)

const (
	DefaultMaxRounds = 24

	// maxParallelCalls caps concurrent calls in one round.
	maxParallelCalls = 4
)

// Conversation is one model exchange that can request tool calls. The first
// Send carries the prompt; later ones carry the results of the previous
// turn's calls.
type Conversation interface {
	Send(ctx context.Context, prompt string, results []providers.ToolResult) (*providers.Turn, error)
}

// LoopConfig configures RunToolLoop.
type LoopConfig struct {
	Registry  *tools.ToolRegistry
	MaxRounds int
}

// LoopResult contains the outcome of a tool loop.
type LoopResult struct {
	Text      string
	Truncated bool
	// Rounds counts executed tool rounds.
	Rounds int
}

// TruncationNote is appended to the reply when the round bound is hit.
func TruncationNote(rounds int) string {
	return fmt.Sprintf("[tool loop truncated after %d rounds]", rounds)
}

// RunToolLoop sends prompt, executes requested tool calls and feeds their
// results back until the model answers without calls or MaxRounds tool
// rounds have run. Text from every turn is accumulated.
func RunToolLoop(ctx context.Context, cfg LoopConfig, conv Conversation, prompt string) (*LoopResult, error) {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	var text strings.Builder
	rounds := 0

	turn, err := conv.Send(ctx, prompt, nil)
	for {
		if err != nil {
			logger.ErrorCF("toolloop", "LLM call failed", map[string]any{
				"round": rounds,
				"error": err.Error(),
			})
			return nil, fmt.Errorf("LLM call failed: %w", err)
		}
		text.WriteString(turn.Text)

		if len(turn.Calls) == 0 {
			logger.DebugCF("toolloop", "LLM response without tool calls", map[string]any{
				"rounds":        rounds,
				"content_chars": text.Len(),
			})
			return &LoopResult{Text: strings.TrimSpace(text.String()), Rounds: rounds}, nil
		}

		if rounds >= maxRounds {
			logger.WarnCF("toolloop", "Tool loop bound reached", map[string]any{
				"rounds":  rounds,
				"pending": len(turn.Calls),
			})
			out := strings.TrimSpace(text.String())
			if out != "" {
				out += "\n"
			}
			return &LoopResult{
				Text:      out + TruncationNote(rounds),
				Truncated: true,
				Rounds:    rounds,
			}, nil
		}

		results := executeCalls(ctx, cfg.Registry, turn.Calls)
		rounds++
		turn, err = conv.Send(ctx, prompt, results)
	}
}

// executeCalls runs one round. Results keep the order the model emitted
// the calls in.
func executeCalls(ctx context.Context, registry *tools.ToolRegistry, calls []providers.ToolCall) []providers.ToolResult {
	results := make([]providers.ToolResult, len(calls))
	if registry == nil {
		for i, tc := range calls {
			results[i] = providers.ToolResult{CallID: tc.ID, Output: "error: no tools available"}
		}
		return results
	}

	names := make([]string, 0, len(calls))
	parallel := len(calls) > 1
	for _, tc := range calls {
		names = append(names, tc.Name)
		if !registry.IsConcurrentSafe(tc.Name) {
			parallel = false
		}
	}
	logger.InfoCF("toolloop", "LLM requested tool calls", map[string]any{
		"tools":    names,
		"count":    len(calls),
		"parallel": parallel,
	})

	invoke := func(i int) {
		tc := calls[i]
		argsJSON, _ := json.Marshal(tc.Arguments)
		logger.DebugCF("toolloop", "Tool call", map[string]any{
			"tool": tc.Name,
			"args": truncate(string(argsJSON), 200),
		})
		results[i] = providers.ToolResult{
			CallID: tc.ID,
			Output: registry.Invoke(ctx, tc.Name, tc.Arguments),
		}
	}

	if !parallel {
		for i := range calls {
			invoke(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(maxParallelCalls)
	for i := range calls {
		g.Go(func() error {
			invoke(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
