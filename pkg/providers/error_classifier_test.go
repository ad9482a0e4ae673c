package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil, "openai", "gpt-4o"))
}

func TestClassifyError_ContextCanceled(t *testing.T) {
	assert.Nil(t, ClassifyError(context.Canceled, "openai", "gpt-4o"))
}

func TestClassifyError_ContextDeadlineExceeded(t *testing.T) {
	result := ClassifyError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "openai", "gpt-4o")
	require.NotNil(t, result)
	assert.Equal(t, FailoverTimeout, result.Reason)
}

func TestClassifyError_StatusCodes(t *testing.T) {
	tests := []struct {
		status int
		reason FailoverReason
	}{
		{401, FailoverAuth},
		{403, FailoverAuth},
		{402, FailoverBilling},
		{408, FailoverTimeout},
		{429, FailoverRateLimit},
		{400, FailoverModelInvalid},
		{500, FailoverTimeout},
		{502, FailoverTimeout},
		{503, FailoverTimeout},
	}

	for _, tt := range tests {
		err := fmt.Errorf("API error: status: %d something went wrong", tt.status)
		result := ClassifyError(err, "test", "model")
		require.NotNil(t, result, "status %d", tt.status)
		assert.Equal(t, tt.reason, result.Reason, "status %d", tt.status)
		assert.Equal(t, tt.status, result.Status)
	}
}

func TestClassifyError_Patterns(t *testing.T) {
	tests := []struct {
		msg    string
		reason FailoverReason
	}{
		{"rate limit exceeded", FailoverRateLimit},
		{"RateLimitError: slow down", FailoverRateLimit},
		{"too many requests", FailoverRateLimit},
		{"You exceeded your current quota, please check your plan and billing details", FailoverRateLimit},
		{"resource_exhausted", FailoverRateLimit},
		{"quota exceeded", FailoverRateLimit},
		{"server is overloaded", FailoverRateLimit},
		{"payment required", FailoverBilling},
		{"insufficient credits", FailoverBilling},
		{"credit balance too low", FailoverBilling},
		{"request timeout", FailoverTimeout},
		{"connection timed out", FailoverTimeout},
		{"dial tcp 127.0.0.1:11434: connect: connection refused", FailoverTimeout},
		{"invalid api key", FailoverAuth},
		{"incorrect api key provided", FailoverAuth},
		{"authentication failed", FailoverAuth},
		{"token has expired", FailoverAuth},
		{"no api key found", FailoverAuth},
		{"tool_use.id is required", FailoverFormat},
		{"invalid request format", FailoverFormat},
		{"model not found", FailoverModelInvalid},
		{"no such model: gpt-5-turbo", FailoverModelInvalid},
		{"model codellama is deprecated", FailoverModelInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			result := ClassifyError(errors.New(tt.msg), "openai", "gpt-4o")
			require.NotNil(t, result)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}
}

func TestClassifyError_ModelInvalidOverridesStatus400(t *testing.T) {
	err := errors.New("API request failed: status: 400 body: gemma:7b is not a valid model ID")
	result := ClassifyError(err, "ollama", "gemma:7b")
	require.NotNil(t, result)
	assert.Equal(t, FailoverModelInvalid, result.Reason)
	assert.True(t, result.IsRetriable())
	assert.True(t, result.IsModelInvalid())
}

func TestClassifyError_UnknownError(t *testing.T) {
	assert.Nil(t, ClassifyError(errors.New("some completely random error"), "openai", "gpt-4o"))
}

func TestClassifyError_KeepsExistingFailoverError(t *testing.T) {
	inner := &FailoverError{Reason: FailoverBilling, Provider: "anthropic", Model: "claude"}
	result := ClassifyError(fmt.Errorf("round 2: %w", inner), "openai", "gpt-4o")
	assert.Same(t, inner, result)
}

func TestClassifyError_ProviderModelPropagation(t *testing.T) {
	result := ClassifyError(errors.New("rate limit exceeded"), "my-provider", "my-model")
	require.NotNil(t, result)
	assert.Equal(t, "my-provider", result.Provider)
	assert.Equal(t, "my-model", result.Model)
}

func TestFailoverError_IsRetriable(t *testing.T) {
	tests := []struct {
		reason    FailoverReason
		retriable bool
		quota     bool
	}{
		{FailoverAuth, true, true},
		{FailoverRateLimit, true, true},
		{FailoverBilling, true, true},
		{FailoverTimeout, true, false},
		{FailoverOverloaded, true, false},
		{FailoverModelInvalid, true, false},
		{FailoverFormat, false, false},
		{FailoverUnknown, true, false},
	}

	for _, tt := range tests {
		fe := &FailoverError{Reason: tt.reason}
		assert.Equal(t, tt.retriable, fe.IsRetriable(), "IsRetriable(%q)", tt.reason)
		assert.Equal(t, tt.quota, fe.IsQuota(), "IsQuota(%q)", tt.reason)
		assert.Equal(t, tt.quota, IsQuotaError(fmt.Errorf("wrap: %w", fe)), "IsQuotaError(%q)", tt.reason)
	}
	assert.False(t, IsQuotaError(errors.New("quota exceeded")))
	assert.False(t, IsQuotaError(nil))
}

func TestFailoverError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("too many requests")
	fe := &FailoverError{Reason: FailoverRateLimit, Provider: "openai", Model: "gpt-4o", Status: 429, Wrapped: inner}
	assert.Contains(t, fe.Error(), "rate_limit")
	assert.Contains(t, fe.Error(), "429")
	assert.ErrorIs(t, fe, inner)
}

func TestClassify_AlwaysTyped(t *testing.T) {
	err := classify(0, errors.New("weird failure"), "openai", "gpt-4o")
	var fe *FailoverError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FailoverUnknown, fe.Reason)

	assert.ErrorIs(t, classify(0, context.Canceled, "openai", "gpt-4o"), context.Canceled)
	assert.NoError(t, classify(0, nil, "openai", "gpt-4o"))
}

func TestExtractHTTPStatus(t *testing.T) {
	tests := []struct {
		msg  string
		want int
	}{
		{"status: 429 rate limited", 429},
		{"status 401 unauthorized", 401},
		{"(status=503): overloaded", 503},
		{"HTTP/1.1 502 Bad Gateway", 502},
		{"no status code here", 0},
		{"random number 12345", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractHTTPStatus(tt.msg), tt.msg)
	}
}
