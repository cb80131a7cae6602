// Package inference wraps the OpenAI-compatible backends consumed by the
// pipeline: text structuring, embeddings and poster synthesis. All calls
// rotate through an explicit credential pool and retry rate limits with
// backoff.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sergeymorykov/events-backend/internal/config"
)

const (
	maxAttempts        = 3
	baseRetryDelay     = 1 * time.Second
	rateLimitCooldown  = 30 * time.Second
	maxEmbeddingInput  = 8000
	illustrationPrompt = "Event poster illustration, clean modern design, no text overlays. Event: %s. %s"
)

// Client talks to the inference backends. One underlying API client exists
// per pool key.
type Client struct {
	clients []*openai.Client
	pool    *KeyPool
	cfg     config.InferenceConfig
	logger  *slog.Logger
}

// NewClient builds a client from configuration. Zero keys is a configuration
// error and refused at startup.
func NewClient(cfg config.InferenceConfig, logger *slog.Logger) (*Client, error) {
	pool, err := NewKeyPool(cfg.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("inference credentials: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	clients := make([]*openai.Client, len(cfg.APIKeys))
	for i, key := range cfg.APIKeys {
		clientCfg := openai.DefaultConfig(key)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		clients[i] = openai.NewClientWithConfig(clientCfg)
	}

	return &Client{clients: clients, pool: pool, cfg: cfg, logger: logger}, nil
}

// Structure runs a JSON-mode chat completion and returns the raw JSON
// payload, with any markdown fences stripped.
func (c *Client) Structure(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error) {
	var content string

	err := c.withRotation(ctx, "chat_completion", func(callCtx context.Context, api *openai.Client) error {
		resp, err := api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.cfg.Model,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no completion choices returned from model %s", c.cfg.Model)
		}
		content = resp.Choices[0].Message.Content
		if content == "" {
			return fmt.Errorf("empty response from model %s (finish_reason: %s)",
				c.cfg.Model, resp.Choices[0].FinishReason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return json.RawMessage(StripFences(content)), nil
}

// Embed returns the embedding vector for the text, truncated to the model's
// safe input size. A vector whose width disagrees with the configured
// dimensionality is refused before it can reach the index.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncateRunes(text, maxEmbeddingInput)

	req := embeddingRequest(c.cfg, text)

	var embedding []float32
	err := c.withRotation(ctx, "embedding", func(callCtx context.Context, api *openai.Client) error {
		resp, err := api.CreateEmbeddings(callCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("no embedding data returned from model %s", c.cfg.EmbeddingModel)
		}
		embedding = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.cfg.EmbeddingDimensions > 0 && len(embedding) != c.cfg.EmbeddingDimensions {
		return nil, fmt.Errorf("embedding model %s returned %d dimensions, index expects %d",
			c.cfg.EmbeddingModel, len(embedding), c.cfg.EmbeddingDimensions)
	}
	return embedding, nil
}

// embeddingRequest builds the request for the configured model. The
// dimensions parameter is only sent to models that honor it; ada-002
// rejects it outright.
func embeddingRequest(cfg config.InferenceConfig, text string) openai.EmbeddingRequest {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(cfg.EmbeddingModel),
		Input: []string{text},
	}
	if cfg.EmbeddingDimensions > 0 && strings.HasPrefix(cfg.EmbeddingModel, "text-embedding-3") {
		req.Dimensions = cfg.EmbeddingDimensions
	}
	return req
}

// truncateRunes cuts the text to at most max bytes without splitting a
// multi-byte rune.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Illustrate synthesizes a poster image for a candidate and returns its URL.
func (c *Client) Illustrate(ctx context.Context, title, description string) (string, error) {
	prompt := fmt.Sprintf(illustrationPrompt, title, description)

	var ref string
	err := c.withRotation(ctx, "image_generation", func(callCtx context.Context, api *openai.Client) error {
		resp, err := api.CreateImage(callCtx, openai.ImageRequest{
			Model:          c.cfg.ImageModel,
			Prompt:         prompt,
			N:              1,
			Size:           openai.CreateImageSize1024x1024,
			ResponseFormat: openai.CreateImageResponseFormatURL,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("no image data returned from model %s", c.cfg.ImageModel)
		}
		ref = resp.Data[0].URL
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// withRotation executes the call with a per-attempt timeout, rotating to the
// next pool key and backing off with jitter when a key hits its rate limit.
func (c *Client) withRotation(ctx context.Context, op string, call func(context.Context, *openai.Client) error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx, _ := c.pool.Next()

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		start := time.Now()
		err := call(callCtx, c.clients[idx])
		cancel()

		if err == nil {
			c.logger.Debug("inference call complete",
				"op", op,
				"key_index", idx,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		}
		lastErr = err

		if !isRateLimit(err) {
			return fmt.Errorf("%s: %w", op, err)
		}

		c.pool.MarkLimited(idx, rateLimitCooldown)

		delay := baseRetryDelay * time.Duration(1<<uint(attempt))
		delay += time.Duration(rand.Intn(500)) * time.Millisecond

		c.logger.Warn("rate limited, rotating key",
			"op", op,
			"key_index", idx,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds())

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s: rate limit exceeded after %d attempts: %w", op, maxAttempts, lastErr)
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "Rate limit")
}

// StripFences removes a surrounding markdown code fence from model output.
func StripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.Contains(trimmed, "```json") {
		start := strings.Index(trimmed, "```json") + len("```json")
		if end := strings.Index(trimmed[start:], "```"); end >= 0 {
			return strings.TrimSpace(trimmed[start : start+end])
		}
	}
	if strings.Contains(trimmed, "```") {
		start := strings.Index(trimmed, "```") + len("```")
		if end := strings.Index(trimmed[start:], "```"); end >= 0 {
			return strings.TrimSpace(trimmed[start : start+end])
		}
	}
	return trimmed
}
