package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaURL = "http://localhost:11434"

	ollamaProvider = "ollama"
	tagsTimeout    = 5 * time.Second
)

// SmallModelPreferences ranks small local models used when a hosted backend
// runs out of quota.
var SmallModelPreferences = []string{
	"gemma:2b",
	"llama3.2:1b",
	"llama3.2:3b",
	"phi3:mini",
	"qwen2.5:1.5b",
	"llama3.2",
	"llama3.1",
}

// OllamaClient talks to the native Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (c *OllamaClient) BaseURL() string {
	return c.baseURL
}

// OpenAIBaseURL is the OpenAI-compatible endpoint of the same server.
func (c *OllamaClient) OpenAIBaseURL() string {
	return c.baseURL + "/v1"
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Tags lists the installed model names (GET /api/tags).
func (c *OllamaClient) Tags(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding tags response: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// PickSmallModel returns the highest ranked preference present in models,
// else the first model. ok is false when models is empty. A preference
// without a tag also matches the ":latest" variant.
func PickSmallModel(models []string) (string, bool) {
	for _, pref := range SmallModelPreferences {
		for _, m := range models {
			if m == pref || (!strings.Contains(pref, ":") && m == pref+":latest") {
				return m, true
			}
		}
	}
	if len(models) == 0 {
		return "", false
	}
	return models[0], true
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate runs a single non-streaming completion (POST /api/generate).
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.postGenerate(ctx, generateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateChunk
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", classify(0, fmt.Errorf("decoding generate response: %w", err), ollamaProvider, model)
	}
	if out.Error != "" {
		return "", classify(0, errors.New(out.Error), ollamaProvider, model)
	}
	return out.Response, nil
}

// GenerateStream streams completion chunks to onChunk as they arrive. It
// stops early if onChunk returns an error.
func (c *OllamaClient) GenerateStream(ctx context.Context, model, prompt string, onChunk func(string) error) error {
	resp, err := c.postGenerate(ctx, generateRequest{Model: model, Prompt: prompt, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var chunk generateChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return classify(0, fmt.Errorf("decoding stream: %w", err), ollamaProvider, model)
		}
		if chunk.Error != "" {
			return classify(0, errors.New(chunk.Error), ollamaProvider, model)
		}
		if chunk.Response != "" {
			if err := onChunk(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
}

func (c *OllamaClient) postGenerate(ctx context.Context, body generateRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(0, fmt.Errorf("ollama unreachable at %s: %w", c.baseURL, err), ollamaProvider, body.Model)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classify(resp.StatusCode,
			fmt.Errorf("ollama generate returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			ollamaProvider, body.Model)
	}
	return resp, nil
}
