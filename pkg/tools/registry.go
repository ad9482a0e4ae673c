package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sipeed/picojarvis/pkg/logger"
	"github.com/sipeed/picojarvis/pkg/providers"
)

const DefaultToolTimeout = 120 * time.Second

type ToolRegistry struct {
	tools   map[string]Tool
	mu      sync.RWMutex
	timeout time.Duration
}

// NewToolRegistry returns an empty registry whose calls are each bounded by
// timeout (DefaultToolTimeout when zero).
func NewToolRegistry(timeout time.Duration) *ToolRegistry {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		timeout: timeout,
	}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// IsConcurrentSafe reports whether a call to name may share a round with
// other calls. Unknown tools are safe: they only produce an error text.
func (r *ToolRegistry) IsConcurrentSafe(name string) bool {
	tool, ok := r.Resolve(name)
	if !ok {
		return true
	}
	cs, ok := tool.(ConcurrentSafe)
	return ok && cs.ConcurrentSafe()
}

// Invoke runs a tool and always answers with text. Failures come back with
// the "error: " prefix.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]any) string {
	tool, ok := r.Resolve(name)
	if !ok {
		logger.WarnCF("tool", "Tool not found", map[string]any{"tool": name})
		return fmt.Sprintf("error: unknown tool %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(tool.Parameters(), args); err != nil {
		logger.WarnCF("tool", "Invalid tool arguments", map[string]any{
			"tool":  name,
			"error": err.Error(),
		})
		return fmt.Sprintf("error: invalid arguments for %s: %v", name, err)
	}

	logger.DebugCF("tool", "Tool execution started", map[string]any{
		"tool": name,
		"args": args,
	})

	start := time.Now()
	result := r.execute(ctx, tool, args)
	duration := time.Since(start)

	if result.IsError {
		fields := map[string]any{
			"tool":        name,
			"duration_ms": duration.Milliseconds(),
			"error":       result.ForLLM,
		}
		if result.Err != nil {
			fields["cause"] = result.Err.Error()
		}
		logger.ErrorCF("tool", "Tool execution failed", fields)
	} else {
		logger.InfoCF("tool", "Tool execution completed", map[string]any{
			"tool":          name,
			"duration_ms":   duration.Milliseconds(),
			"result_length": len(result.ForLLM),
		})
	}
	return result.ForLLM
}

func (r *ToolRegistry) execute(ctx context.Context, tool Tool, args map[string]any) *ToolResult {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan *ToolResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- ErrorResult(fmt.Sprintf("tool %s panicked: %v", tool.Name(), p))
			}
		}()
		res := tool.Execute(callCtx, args)
		if res == nil {
			res = OKResult()
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.IsError && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrorResult(fmt.Sprintf("tool %s timed out after %v", tool.Name(), r.timeout))
		}
		return res
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ErrorResult(fmt.Sprintf("tool %s cancelled: %v", tool.Name(), ctx.Err())).WithError(ctx.Err())
		}
		return ErrorResult(fmt.Sprintf("tool %s timed out after %v", tool.Name(), r.timeout))
	}
}

func (r *ToolRegistry) sortedToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the provider-facing schemas sorted by name, so the
// tool block of a prompt is stable across calls.
func (r *ToolRegistry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedToolNames()
	definitions := make([]providers.ToolDefinition, 0, len(sorted))
	for _, name := range sorted {
		tool := r.tools[name]
		definitions = append(definitions, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return definitions
}

// List returns the registered tool names.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedToolNames()
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
