package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listFilesDef = ToolDefinition{
	Type: "function",
	Function: ToolFunctionDefinition{
		Name:        "list_files",
		Description: "List files",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []string{"path"},
		},
	},
}

type recorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (r *recorder) add(t *testing.T, req *http.Request) int {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	return len(r.bodies)
}

func TestResponsesConversation_ChainsPreviousResponse(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		n := rec.add(t, r)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"id":"resp_1","output":[
				{"type":"message","content":[{"type":"output_text","text":"Looking. "}]},
				{"type":"function_call","call_id":"call_a","name":"list_files","arguments":"{\"path\":\".\"}"}
			]}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"resp_2","output":[{"type":"message","content":[{"type":"output_text","text":"Done."}]}]}`))
	}))
	defer server.Close()

	conv := NewResponsesConversation("sk-test", server.URL, 5*time.Second, ConversationConfig{
		Model:        "gpt-4o",
		Instructions: "be useful",
		Tools:        []ToolDefinition{listFilesDef},
	})

	turn, err := conv.Send(context.Background(), "list my files", nil)
	require.NoError(t, err)
	assert.Equal(t, "Looking. ", turn.Text)
	assert.Equal(t, "resp_1", turn.ResponseID)
	require.Len(t, turn.Calls, 1)
	assert.Equal(t, "call_a", turn.Calls[0].ID)
	assert.Equal(t, "list_files", turn.Calls[0].Name)
	assert.Equal(t, map[string]any{"path": "."}, turn.Calls[0].Arguments)

	turn, err = conv.Send(context.Background(), "list my files", []ToolResult{{CallID: "call_a", Output: `["a.txt"]`}})
	require.NoError(t, err)
	assert.Equal(t, "Done.", turn.Text)
	assert.Empty(t, turn.Calls)

	require.Len(t, rec.bodies, 2)
	first := rec.bodies[0]
	assert.Equal(t, "gpt-4o", first["model"])
	assert.Equal(t, "be useful", first["instructions"])
	assert.Equal(t, "auto", first["tool_choice"])
	assert.Nil(t, first["previous_response_id"])
	tools := first["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "list_files", tools[0].(map[string]any)["name"])

	second := rec.bodies[1]
	assert.Equal(t, "resp_1", second["previous_response_id"])
	input := second["input"].([]any)
	require.Len(t, input, 1)
	item := input[0].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call_a", item["call_id"])
	assert.Equal(t, `["a.txt"]`, item["output"])
}

func TestResponsesConversation_QuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	}))
	defer server.Close()

	conv := NewResponsesConversation("sk-test", server.URL, 5*time.Second, ConversationConfig{Model: "gpt-4o"})
	_, err := conv.Send(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))

	var fe *FailoverError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 429, fe.Status)
	assert.Equal(t, "openai", fe.Provider)
}

func TestChatConversation_ToolRoundTrip(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		n := rec.add(t, r)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"llama3.2",
				"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
				"tool_calls":[{"id":"","type":"function","function":{"name":"list_files","arguments":"{\"path\":\"/tmp\"}"}}]}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"llama3.2",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"found 1 file"}}]}`))
	}))
	defer server.Close()

	conv := NewChatConversation("ollama", "", server.URL, 5*time.Second, ConversationConfig{
		Model:        "llama3.2",
		Instructions: "look first",
		Tools:        []ToolDefinition{listFilesDef},
	})

	turn, err := conv.Send(context.Background(), "what is in /tmp", nil)
	require.NoError(t, err)
	require.Len(t, turn.Calls, 1)
	callID := turn.Calls[0].ID
	assert.NotEmpty(t, callID)
	assert.Equal(t, "/tmp", turn.Calls[0].Arguments["path"])

	turn, err = conv.Send(context.Background(), "what is in /tmp", []ToolResult{{CallID: callID, Output: "x.log"}})
	require.NoError(t, err)
	assert.Equal(t, "found 1 file", turn.Text)

	require.Len(t, rec.bodies, 2)
	msgs := rec.bodies[1]["messages"].([]any)
	// system, user, assistant (tool call), tool
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, callID, tool["tool_call_id"])
}

func TestChatConversation_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer server.Close()

	conv := NewChatConversation("ollama", "", server.URL, 5*time.Second, ConversationConfig{Model: "llama3.2"})
	_, err := conv.Send(context.Background(), "hi", nil)
	var fe *FailoverError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FailoverTimeout, fe.Reason)
	assert.False(t, IsQuotaError(err))
}

func TestAnthropicConversation_ToolRoundTrip(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		n := rec.add(t, r)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
				"content":[{"type":"text","text":"Checking."},{"type":"tool_use","id":"toolu_1","name":"list_files","input":{"path":"."}}],
				"stop_reason":"tool_use","usage":{"input_tokens":5,"output_tokens":5}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"All set."}],
			"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":5}}`))
	}))
	defer server.Close()

	conv := NewAnthropicConversation("ak-test", server.URL, 5*time.Second, ConversationConfig{
		Model:        "claude-sonnet-4-5",
		Instructions: "act",
		Tools:        []ToolDefinition{listFilesDef},
	})

	turn, err := conv.Send(context.Background(), "list", nil)
	require.NoError(t, err)
	assert.Equal(t, "Checking.", turn.Text)
	require.Len(t, turn.Calls, 1)
	assert.Equal(t, "toolu_1", turn.Calls[0].ID)

	turn, err = conv.Send(context.Background(), "list", []ToolResult{{CallID: "toolu_1", Output: "a.txt"}})
	require.NoError(t, err)
	assert.Equal(t, "All set.", turn.Text)

	first := rec.bodies[0]
	tools := first["tools"].([]any)
	require.Len(t, tools, 1)
	schema := tools[0].(map[string]any)["input_schema"].(map[string]any)
	assert.Equal(t, []any{"path"}, schema["required"])

	msgs := rec.bodies[1]["messages"].([]any)
	require.Len(t, msgs, 3)
	last := msgs[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	block := last["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "toolu_1", block["tool_use_id"])
}

func TestAnthropicConversation_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	conv := NewAnthropicConversation("bad", server.URL, 5*time.Second, ConversationConfig{Model: "claude-sonnet-4-5"})
	_, err := conv.Send(context.Background(), "hi", nil)
	assert.True(t, IsQuotaError(err))
}
