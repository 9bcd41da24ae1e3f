// Package gateway wraps the OpenAI-compatible model gateway used for
// embedding generation and chat completions, plus the guideline text
// extractor. All remote failures surface as errors; per-item embedding
// failures surface as empty vectors so callers can quarantine individual
// records without losing the batch.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/marcusb/corpusd/internal/config"
	"github.com/marcusb/corpusd/internal/domain"
)

// Client talks to the embedding and completion endpoints of one gateway.
type Client struct {
	http            *resty.Client
	baseURL         string
	embeddingModel  string
	completionModel string
}

// NewClient creates a gateway client from configuration.
// Parameters:
//   - cfg: gateway configuration (base URL, models, optional API key).
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *config.GatewayConfig) *Client {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:            client,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		embeddingModel:  cfg.EmbeddingModel,
		completionModel: cfg.CompletionModel,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// EmbedBatch generates embeddings for multiple texts in one call.
// The returned slice always has the same length as texts; an empty vector at
// position i marks a per-item failure for texts[i]. A non-nil error means the
// whole batch failed.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return []domain.Vector{}, nil
	}

	// Trim inputs; some embedding models choke on trailing whitespace and
	// a batch of only-empty strings is a guaranteed failure.
	sanitized := make([]string, len(texts))
	allEmpty := true
	for i, t := range texts {
		sanitized[i] = strings.TrimSpace(t)
		if sanitized[i] != "" {
			allEmpty = false
		}
	}
	if allEmpty {
		return make([]domain.Vector, len(texts)), nil
	}

	req := embeddingRequest{
		Model: c.embeddingModel,
		Input: sanitized,
	}

	var resp embeddingResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.baseURL + "/embeddings")
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != nil {
			return nil, fmt.Errorf("embedding API error: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())
	}

	// Map by index; items the gateway dropped stay empty and are treated as
	// per-record failures by the caller.
	embeddings := make([]domain.Vector, len(texts))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}

	return embeddings, nil
}

// Complete sends a chat completion request and returns the response text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: user prompt.
//   - systemPrompt: optional system prompt; empty omits the system message.
// Returns:
//   - string: completion text.
//   - error: non-nil if the request fails or returns no choices.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: 0.7,
	}

	var resp chatResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("failed to call completion API: %w", err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if resp.Error != nil {
			return "", fmt.Errorf("completion API error: %s", resp.Error.Message)
		}
		return "", fmt.Errorf("completion API error: status %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}
	if resp.Error != nil {
		return "", fmt.Errorf("completion API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response (status %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}
