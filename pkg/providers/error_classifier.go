package providers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FailoverReason classifies why a backend call failed.
type FailoverReason string

const (
	FailoverAuth         FailoverReason = "auth"
	FailoverRateLimit    FailoverReason = "rate_limit"
	FailoverBilling      FailoverReason = "billing"
	FailoverTimeout      FailoverReason = "timeout"
	FailoverOverloaded   FailoverReason = "overloaded"
	FailoverModelInvalid FailoverReason = "model_invalid"
	FailoverFormat       FailoverReason = "format"
	FailoverUnknown      FailoverReason = "unknown"
)

// FailoverError is a classified backend failure.
type FailoverError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Status   int
	Wrapped  error
}

func (e *FailoverError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s/%s %s (status %d): %v", e.Provider, e.Model, e.Reason, e.Status, e.Wrapped)
	}
	return fmt.Sprintf("%s/%s %s: %v", e.Provider, e.Model, e.Reason, e.Wrapped)
}

func (e *FailoverError) Unwrap() error {
	return e.Wrapped
}

// IsRetriable reports whether another backend could succeed where this one
// failed. Malformed requests fail the same way everywhere.
func (e *FailoverError) IsRetriable() bool {
	return e.Reason != FailoverFormat
}

func (e *FailoverError) IsModelInvalid() bool {
	return e.Reason == FailoverModelInvalid
}

// IsQuota reports whether the failure means the account cannot be used right
// now: rate limits, exhausted quota or billing, and rejected credentials.
func (e *FailoverError) IsQuota() bool {
	switch e.Reason {
	case FailoverRateLimit, FailoverBilling, FailoverAuth:
		return true
	}
	return false
}

// IsQuotaError reports whether err is a quota-class FailoverError.
func IsQuotaError(err error) bool {
	var fe *FailoverError
	return errors.As(err, &fe) && fe.IsQuota()
}

var (
	rateLimitPatterns = []string{
		"rate limit", "rate_limit", "ratelimiterror", "too many requests",
		"exceeded your current quota", "resource has been exhausted",
		"resource_exhausted", "quota exceeded", "insufficient_quota",
		"usage limit", "overloaded",
	}
	billingPatterns = []string{
		"payment required", "insufficient credits", "credit balance",
		"plans & billing", "insufficient balance", "billing",
	}
	timeoutPatterns = []string{
		"timeout", "timed out", "deadline exceeded", "connection refused",
		"connection reset", "no such host",
	}
	authPatterns = []string{
		"invalid api key", "invalid_api_key", "incorrect api key",
		"invalid token", "authentication", "re-authenticate", "unauthorized",
		"forbidden", "access denied", "expired", "no credentials",
		"no api key",
	}
	formatPatterns = []string{
		"string should match pattern", "tool_use.id", "tool_use_id",
		"invalid request format", "invalid_request_error",
	}
	modelInvalidPatterns = []*regexp.Regexp{
		regexp.MustCompile(`is not a valid model`),
		regexp.MustCompile(`model[_ ]not[_ ]found`),
		regexp.MustCompile(`model not available`),
		regexp.MustCompile(`model does not exist`),
		regexp.MustCompile(`no such model`),
		regexp.MustCompile(`invalid model`),
		regexp.MustCompile(`model \S+ is (not supported|unavailable|deprecated)`),
	}
	statusPattern = regexp.MustCompile(`(?i)(?:status[:=]?\s*|HTTP/\d(?:\.\d)?\s+)(\d{3})\b`)
)

// ClassifyError maps err onto a FailoverReason. It returns nil for nil
// errors, for context.Canceled (the caller gave up) and for errors it does
// not recognise.
func ClassifyError(err error, provider, model string) *FailoverError {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	var fe *FailoverError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FailoverError{Reason: FailoverTimeout, Provider: provider, Model: model, Wrapped: err}
	}
	return ClassifyStatus(extractHTTPStatus(err.Error()), err, provider, model)
}

// ClassifyStatus is ClassifyError with a known HTTP status (0 if none).
func ClassifyStatus(status int, err error, provider, model string) *FailoverError {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	mk := func(r FailoverReason) *FailoverError {
		return &FailoverError{Reason: r, Provider: provider, Model: model, Status: status, Wrapped: err}
	}

	for _, re := range modelInvalidPatterns {
		if re.MatchString(msg) {
			return mk(FailoverModelInvalid)
		}
	}

	switch {
	case status == 401 || status == 403:
		return mk(FailoverAuth)
	case status == 402:
		return mk(FailoverBilling)
	case status == 429:
		if containsAny(msg, billingPatterns) && !containsAny(msg, []string{"rate limit", "too many requests"}) {
			return mk(FailoverBilling)
		}
		return mk(FailoverRateLimit)
	case status == 408 || status >= 500:
		return mk(FailoverTimeout)
	case status == 400:
		if containsAny(msg, formatPatterns) {
			return mk(FailoverFormat)
		}
		return mk(FailoverModelInvalid)
	}

	switch {
	case containsAny(msg, rateLimitPatterns):
		return mk(FailoverRateLimit)
	case containsAny(msg, billingPatterns):
		return mk(FailoverBilling)
	case containsAny(msg, formatPatterns):
		return mk(FailoverFormat)
	case containsAny(msg, authPatterns):
		return mk(FailoverAuth)
	case containsAny(msg, timeoutPatterns):
		return mk(FailoverTimeout)
	}
	return nil
}

// classify wraps err as a FailoverError, falling back to FailoverUnknown so
// callers always get a typed error from a backend.
func classify(status int, err error, provider, model string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FailoverError{Reason: FailoverTimeout, Provider: provider, Model: model, Status: status, Wrapped: err}
	}
	if fe := ClassifyStatus(status, err, provider, model); fe != nil {
		return fe
	}
	return &FailoverError{Reason: FailoverUnknown, Provider: provider, Model: model, Status: status, Wrapped: err}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func extractHTTPStatus(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if len(m) < 2 {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil || code < 100 || code > 599 {
		return 0
	}
	return code
}
