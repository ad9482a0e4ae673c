package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/sipeed/picojarvis/pkg/logger"
)

const (
	openaiProvider        = "openai"
	defaultRequestTimeout = 120 * time.Second
)

func newOpenAIClient(apiKey, baseURL string, timeout time.Duration) openai.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return openai.NewClient(opts...)
}

func openAIError(err error, provider, model string) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classify(apiErr.StatusCode,
			fmt.Errorf("%s API request failed (status=%d): %s", provider, apiErr.StatusCode, strings.TrimSpace(apiErr.Message)),
			provider, model)
	}
	return classify(0, fmt.Errorf("%s API request failed: %w", provider, err), provider, model)
}

// ResponsesConversation drives the hosted OpenAI Responses API. Each round
// after the first sends only the tool outputs and refers to the prior
// exchange with previous_response_id.
type ResponsesConversation struct {
	client     openai.Client
	cfg        ConversationConfig
	previousID string
}

func NewResponsesConversation(apiKey, baseURL string, timeout time.Duration, cfg ConversationConfig) *ResponsesConversation {
	return &ResponsesConversation{
		client: newOpenAIClient(apiKey, baseURL, timeout),
		cfg:    cfg,
	}
}

type responsesRequest struct {
	Model              string                `json:"model"`
	Instructions       string                `json:"instructions,omitempty"`
	PreviousResponseID string                `json:"previous_response_id,omitempty"`
	Input              []responsesInputItem  `json:"input"`
	Tools              []responsesToolDefine `json:"tools,omitempty"`
	ToolChoice         string                `json:"tool_choice,omitempty"`
	MaxOutputTokens    int                   `json:"max_output_tokens,omitempty"`
	Store              bool                  `json:"store"`
}

type responsesInputItem struct {
	Type    string  `json:"type"`
	Role    string  `json:"role,omitempty"`
	Content string  `json:"content,omitempty"`
	CallID  string  `json:"call_id,omitempty"`
	Output  *string `json:"output,omitempty"`
}

type responsesToolDefine struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type responsesResponse struct {
	ID     string                `json:"id"`
	Output []responsesOutputItem `json:"output"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type responsesOutputItem struct {
	Type      string `json:"type"`
	Content   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

func (c *ResponsesConversation) Send(ctx context.Context, prompt string, results []ToolResult) (*Turn, error) {
	req := responsesRequest{
		Model:              c.cfg.Model,
		Instructions:       c.cfg.Instructions,
		PreviousResponseID: c.previousID,
		Tools:              toResponsesTools(c.cfg.Tools),
		MaxOutputTokens:    c.cfg.MaxTokens,
		Store:              true,
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	if c.previousID == "" {
		req.Input = []responsesInputItem{{Type: "message", Role: "user", Content: prompt}}
	} else {
		req.Input = make([]responsesInputItem, 0, len(results))
		for _, r := range results {
			output := r.Output
			req.Input = append(req.Input, responsesInputItem{
				Type:   "function_call_output",
				CallID: r.CallID,
				Output: &output,
			})
		}
	}

	var resp responsesResponse
	if err := c.client.Post(ctx, "responses", req, &resp); err != nil {
		return nil, openAIError(err, openaiProvider, c.cfg.Model)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, classify(0, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message), openaiProvider, c.cfg.Model)
	}
	c.previousID = resp.ID

	turn := &Turn{ResponseID: resp.ID}
	var text strings.Builder
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					text.WriteString(part.Text)
				}
			}
		case "function_call":
			turn.Calls = append(turn.Calls, ToolCall{
				ID:        item.CallID,
				Name:      item.Name,
				Arguments: decodeArguments(item.Name, item.Arguments),
			})
		}
	}
	turn.Text = text.String()
	return turn, nil
}

func toResponsesTools(tools []ToolDefinition) []responsesToolDefine {
	out := make([]responsesToolDefine, 0, len(tools))
	for _, t := range tools {
		if t.Function.Name == "" {
			continue
		}
		out = append(out, responsesToolDefine{
			Type:        "function",
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return out
}

// ChatConversation drives an OpenAI-compatible chat completions endpoint
// (used for the local inference server). The full message history is resent
// on every round.
type ChatConversation struct {
	client   openai.Client
	cfg      ConversationConfig
	provider string
	messages []openai.ChatCompletionMessageParamUnion
}

func NewChatConversation(provider, apiKey, baseURL string, timeout time.Duration, cfg ConversationConfig) *ChatConversation {
	if apiKey == "" {
		// the SDK otherwise falls back to OPENAI_API_KEY from the environment
		apiKey = "unused"
	}
	return &ChatConversation{
		client:   newOpenAIClient(apiKey, baseURL, timeout),
		cfg:      cfg,
		provider: provider,
	}
}

func (c *ChatConversation) Send(ctx context.Context, prompt string, results []ToolResult) (*Turn, error) {
	if len(c.messages) == 0 {
		if c.cfg.Instructions != "" {
			c.messages = append(c.messages, openai.SystemMessage(c.cfg.Instructions))
		}
		c.messages = append(c.messages, openai.UserMessage(prompt))
	} else {
		for _, r := range results {
			c.messages = append(c.messages, openai.ToolMessage(r.Output, r.CallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.cfg.Model,
		Messages: c.messages,
	}
	if tools := buildChatTools(c.cfg.Tools); len(tools) > 0 {
		params.Tools = tools
		params.ToolChoice.OfAuto = openai.String(string(openai.ChatCompletionToolChoiceOptionAutoAuto))
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, openAIError(err, c.provider, c.cfg.Model)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, classify(0, errors.New("API returned no choices"), c.provider, c.cfg.Model)
	}

	msg := resp.Choices[0].Message
	turn := &Turn{
		Text:       msg.Content,
		Calls:      parseChoiceToolCalls(msg.ToolCalls),
		ResponseID: resp.ID,
	}
	c.messages = append(c.messages, buildAssistantMessage(turn))
	return turn, nil
}

func buildAssistantMessage(turn *Turn) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if turn.Text != "" {
		assistant.Content.OfString = openai.String(turn.Text)
	}
	for _, tc := range turn.Calls {
		args := "{}"
		if len(tc.Arguments) > 0 {
			if b, err := json.Marshal(tc.Arguments); err == nil {
				args = string(b)
			}
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: args,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func buildChatTools(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function.Name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  shared.FunctionParameters(tool.Function.Parameters),
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}

// parseChoiceToolCalls converts SDK tool calls. Local servers sometimes omit
// call ids, so missing ones are generated to keep results matchable.
func parseChoiceToolCalls(calls []openai.ChatCompletionMessageToolCallUnion) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		switch v := call.AsAny().(type) {
		case openai.ChatCompletionMessageFunctionToolCall:
			id := v.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			result = append(result, ToolCall{
				ID:        id,
				Name:      v.Function.Name,
				Arguments: decodeArguments(v.Function.Name, v.Function.Arguments),
			})
		}
	}
	return result
}

func decodeArguments(name, raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.WarnCF("provider", "Failed to decode tool call arguments", map[string]any{
			"tool":  name,
			"error": err.Error(),
		})
		return map[string]any{}
	}
	return args
}
