package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicProvider = "anthropic"
	defaultMaxTokens  = 4096
)

// AnthropicConversation drives the Anthropic Messages API. The API is
// stateless, so the message history is kept locally and resent each round.
type AnthropicConversation struct {
	client   anthropic.Client
	cfg      ConversationConfig
	messages []anthropic.MessageParam
}

func NewAnthropicConversation(apiKey, baseURL string, timeout time.Duration, cfg ConversationConfig) *AnthropicConversation {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &AnthropicConversation{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}
}

func (c *AnthropicConversation) Send(ctx context.Context, prompt string, results []ToolResult) (*Turn, error) {
	if len(c.messages) == 0 {
		c.messages = append(c.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
	} else {
		// all tool results for one assistant turn go into a single user message
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
		for _, r := range results {
			blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Output, strings.HasPrefix(r.Output, "error:")))
		}
		c.messages = append(c.messages, anthropic.NewUserMessage(blocks...))
	}

	maxTokens := int64(c.cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		Messages:  c.messages,
		MaxTokens: maxTokens,
	}
	if c.cfg.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.cfg.Instructions}}
	}
	if len(c.cfg.Tools) > 0 {
		params.Tools = translateTools(c.cfg.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, classify(apiErr.StatusCode,
				fmt.Errorf("claude API call (status=%d): %w", apiErr.StatusCode, err),
				anthropicProvider, c.cfg.Model)
		}
		return nil, classify(0, fmt.Errorf("claude API call: %w", err), anthropicProvider, c.cfg.Model)
	}

	turn := parseAnthropicResponse(resp)
	c.messages = append(c.messages, assistantParam(turn))
	return turn, nil
}

func translateTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name: t.Function.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Function.Parameters["properties"],
				Required:   requiredFields(t.Function.Parameters),
			},
		}
		if desc := t.Function.Description; desc != "" {
			tool.Description = anthropic.String(desc)
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return result
}

func parseAnthropicResponse(resp *anthropic.Message) *Turn {
	turn := &Turn{ResponseID: resp.ID}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			args := map[string]any{}
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					args = map[string]any{}
				}
			}
			turn.Calls = append(turn.Calls, ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}
	turn.Text = text.String()
	return turn
}

func assistantParam(turn *Turn) anthropic.MessageParam {
	var blocks []anthropic.ContentBlockParamUnion
	if turn.Text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
	}
	for _, tc := range turn.Calls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
	}
	return anthropic.NewAssistantMessage(blocks...)
}
