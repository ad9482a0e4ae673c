package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a named capability a model may call.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *ToolResult
}

// ConcurrentSafe is implemented by tools that may run alongside other calls
// of the same round.
type ConcurrentSafe interface {
	ConcurrentSafe() bool
}

// ToolResult is what a tool hands back. Only ForLLM travels to the model.
type ToolResult struct {
	ForLLM  string
	IsError bool
	Err     error `json:"-"`
}

func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// ErrorResult formats message with the conventional "error: " prefix.
func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: "error: " + message, IsError: true}
}

func (tr *ToolResult) WithError(err error) *ToolResult {
	tr.Err = err
	return tr
}

// JSONResult encodes v compactly.
func JSONResult(v any) *ToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return ErrorResult(fmt.Sprintf("encode result: %v", err)).WithError(err)
	}
	return NewToolResult(string(b))
}

// OKResult is the reply of tools that have nothing to report.
func OKResult() *ToolResult {
	return NewToolResult("ok")
}

func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
