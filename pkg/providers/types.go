package providers

// ToolCall is one function call requested by a model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult carries the textual output of a ToolCall back to the model.
type ToolResult struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// Turn is one model response inside a tool loop.
type Turn struct {
	Text  string
	Calls []ToolCall
	// ResponseID is the server-side handle for the exchange, when the
	// backend has one.
	ResponseID string
}

type ToolDefinition struct {
	Type     string                 `json:"type"`
	Function ToolFunctionDefinition `json:"function"`
}

type ToolFunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ConversationConfig configures one tool-capable conversation.
type ConversationConfig struct {
	Model        string
	Instructions string
	Tools        []ToolDefinition
	MaxTokens    int
}

// requiredFields reads the "required" list of a JSON schema built either in
// Go ([]string) or decoded from JSON ([]any).
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
