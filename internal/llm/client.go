// Package llm talks to an OpenAI-compatible chat-completions endpoint to
// resolve entities the rule-based matcher is unsure about.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"esgdocs/internal/matching"
	"esgdocs/internal/util"
)

var ErrInvalidResponse = errors.New("invalid model response")

const maxAttempts = 5

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	Timeout      time.Duration
	RateLimitRPS int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    NewRateLimiter(cfg.RateLimitRPS),
		log:        logger,
	}
}

// Enhance implements matching.EntityEnhancer.
func (c *Client) Enhance(ctx context.Context, req matching.EnhanceRequest) (*matching.Enhancement, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, matching.ErrEnhancementUnavailable
	}
	rid := uuid.New().String()
	start := time.Now()
	c.log.Debug("llm.enhance.start", "req_id", rid, "model", c.cfg.Model, "query", req.Query, "context_len", len(req.Context))

	schema := EnhancementSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(req)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		c.log.Error("llm.enhance.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	content := []byte(stripCodeFence(cc.Choices[0].Message.Content))
	if err := ValidateJSONAgainstSchema(schema, content); err != nil {
		c.log.Warn("llm.enhance.schema_validation_failed", "req_id", rid, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var out matching.Enhancement
	if err := json.Unmarshal(content, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	c.log.Info("llm.enhance.ok", "req_id", rid, "entities", len(out.Entities), "document_type", out.ContextAnalysis.DocumentType,
		"elapsed_ms", time.Since(start).Milliseconds())
	return &out, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("model status %d", resp.StatusCode)
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				continue
			}
			return nil, fmt.Errorf("model api error: status=%d body=%s", resp.StatusCode, util.Truncate(string(data), 500))
		}
		return data, nil
	}
	if lastErr == nil {
		lastErr = errors.New("model request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
