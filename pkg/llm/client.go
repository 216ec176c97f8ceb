// Package llm holds the engine's model-backed capabilities: decoy reply
// generation and scam-type classification, both speaking the
// OpenAI-compatible chat completion protocol against a configurable provider.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nightjarlabs/nightjar/pkg/config"
	"github.com/nightjarlabs/nightjar/pkg/httputil"
)

// Message is one chat turn on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client is a thin chat-completions client over the shared pooled transport.
type Client struct {
	httpc    *http.Client
	provider config.LLMProvider
	baseURL  string
	apiKey   string
	model    string
}

// NewClient builds a Client from the engine configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpc:    httputil.NewClient(cfg.LLMTimeout),
		provider: cfg.LLMProvider,
		baseURL:  cfg.BaseURL(),
		apiKey:   cfg.LLMAPIKey,
		model:    cfg.LLMModel,
	}
}

// Chat performs one completion call and returns the assistant message text.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	if c.provider != config.ProviderOllama && c.apiKey == "" {
		return "", fmt.Errorf("api key not configured for provider %s", c.provider)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// OpenRouter attribution headers, ignored by other providers.
	if c.provider == config.ProviderOpenRouter {
		req.Header.Set("HTTP-Referer", "https://github.com/nightjarlabs/nightjar")
		req.Header.Set("X-Title", "nightjar")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer httputil.DrainAndClose(resp.Body)

	const maxResponseSize = 2 * 1024 * 1024
	respBody, err := httputil.ReadResponseBody(resp.Body, maxResponseSize)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// extractJSON pulls the outermost JSON object out of a completion that may be
// wrapped in markdown fences or prose.
func extractJSON(content string) string {
	clean := strings.TrimSpace(content)
	if start := strings.Index(clean, "{"); start != -1 {
		clean = clean[start:]
	}
	if end := strings.LastIndex(clean, "}"); end != -1 {
		clean = clean[:end+1]
	}
	return clean
}
