// Package ai provides the language model client used for reply
// generation, interest analysis and voice note transcription.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/circuitbreaker"
	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/config"
	"github.com/rastreogo/leadbot/internal/metrics"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	// Voice notes are short; cap downloads at 16 MiB.
	maxAudioBytes = 16 << 20
)

// Client handles communication with the model API. All calls go through
// a circuit breaker so a degraded API fails fast instead of stalling
// every conversation.
type Client struct {
	apiKey         string
	model          string
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	metrics        *metrics.Metrics
	clock          clock.Clock
	logger         *zap.Logger

	// tripped is true while the breaker is known to be open, so each
	// trip is counted once rather than on every rejected call.
	tripped atomic.Bool
}

// NewClient creates a model API client. A nil clk defaults to the real
// clock; a nil m disables call instrumentation.
func NewClient(cfg *config.LLMConfig, m *metrics.Metrics, clk clock.Clock, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cbConfig := &circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}

	if clk == nil {
		clk = clock.New()
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		circuitBreaker: circuitbreaker.New("llm-api", cbConfig, clk, logger),
		metrics:        m,
		clock:          clk,
		logger:         logger,
	}
}

// request is the messages API request body.
type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

// block is a content block. Text blocks carry Text; audio blocks carry
// Source with base64 data.
type block struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *blockSource `json:"source,omitempty"`
}

type blockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// response is the messages API response body.
type response struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// apiError is an error response from the model API.
type apiError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a single-turn prompt and returns the response text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := request{
		Model:     c.model,
		MaxTokens: 1024,
		System:    system,
		Messages: []message{
			{
				Role:    "user",
				Content: []block{{Type: "text", Text: prompt}},
			},
		},
	}

	text, err := c.send(ctx, &req)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return text, nil
}

// Transcribe downloads a voice note and asks the model for a plain
// transcription in the given language.
func (c *Client) Transcribe(ctx context.Context, audioURL, mediaType, language string) (string, error) {
	data, err := c.downloadAudio(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	if mediaType == "" {
		mediaType = "audio/ogg"
	}
	if language == "" {
		language = "es"
	}

	req := request{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []message{
			{
				Role: "user",
				Content: []block{
					{
						Type: "audio",
						Source: &blockSource{
							Type:      "base64",
							MediaType: mediaType,
							Data:      base64.StdEncoding.EncodeToString(data),
						},
					},
					{
						Type: "text",
						Text: fmt.Sprintf("Transcribe this voice message verbatim in %s. Reply with the transcription only, no commentary.", language),
					},
				},
			},
		},
	}

	text, err := c.send(ctx, &req)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// CircuitBreakerStats returns the current circuit breaker statistics.
func (c *Client) CircuitBreakerStats() circuitbreaker.Stats {
	return c.circuitBreaker.Stats()
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (c *Client) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}

// send runs the request through the circuit breaker.
func (c *Client) send(ctx context.Context, req *request) (string, error) {
	var result string

	start := c.clock.NowUTC()
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var execErr error
		result, execErr = c.doSend(ctx, req)
		return execErr
	})
	c.observe(err, c.clock.NowUTC().Sub(start))
	if err != nil {
		return "", err
	}

	return result, nil
}

// observe feeds a call outcome and the resulting breaker state into the
// metrics. Calls rejected by an open breaker are not counted as model
// calls; the trip itself is, once, when the breaker first opens.
func (c *Client) observe(err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}

	rejected := errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, circuitbreaker.ErrTooManyRequests)
	if !rejected {
		c.metrics.RecordLLMCall(err == nil, elapsed)
	}

	switch c.circuitBreaker.State() {
	case circuitbreaker.StateOpen:
		c.metrics.SetCircuitBreakerState("llm", 2)
		if c.tripped.CompareAndSwap(false, true) {
			c.metrics.RecordCircuitOpen()
		}
	case circuitbreaker.StateHalfOpen:
		c.metrics.SetCircuitBreakerState("llm", 1)
	default:
		c.metrics.SetCircuitBreakerState("llm", 0)
		c.tripped.Store(false)
	}
}

// doSend performs the actual HTTP request to the messages endpoint.
func (c *Client) doSend(ctx context.Context, reqBody *request) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("model API error: %s - %s", errResp.Error.Type, errResp.Error.Message)
		}
		return "", fmt.Errorf("model API error: status %d", resp.StatusCode)
	}

	var modelResp response
	if err := json.Unmarshal(body, &modelResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(modelResp.Content) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	c.logger.Debug("model call completed",
		zap.Int("input_tokens", modelResp.Usage.InputTokens),
		zap.Int("output_tokens", modelResp.Usage.OutputTokens),
	)

	return modelResp.Content[0].Text, nil
}

// downloadAudio fetches the voice note from the transport's media URL.
func (c *Client) downloadAudio(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if len(data) > maxAudioBytes {
		return nil, fmt.Errorf("media too large: exceeds %d bytes", maxAudioBytes)
	}

	return data, nil
}
