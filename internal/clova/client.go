package clova

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/campusqa/campusqa/internal/log"
)

const (
	// completionsPath is the v3 chat-completions endpoint, parameterized by
	// model name.
	completionsPath = "/v3/chat-completions/%s"

	// maxResponseBody caps how much of a response body is read. Completions
	// are small; anything larger indicates a broken upstream.
	maxResponseBody = 1 << 20
)

// Config holds the client construction parameters.
type Config struct {
	Host      string // e.g. https://clovastudio.stream.ntruss.com
	APIKey    string
	Model     string // e.g. HCX-005
	RequestID string // optional X-NCP-CLOVASTUDIO-REQUEST-ID value

	// Default sampling parameters, applied when Request leaves them zero.
	MaxTokens   int
	Temperature float32

	// RequestsPerSecond limits outbound calls; zero disables limiting.
	RequestsPerSecond float64

	Retry RetryConfig

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the HyperCLOVA X chat-completions API.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	logger     log.Logger
}

// NewClient creates a Client. logger may be nil.
func NewClient(cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    limiter,
		logger:     logger,
	}
}

// Complete executes one chat-completions call with retry.
//
// Retry behavior:
//   - Rate limits EACH attempt, so retries of a throttled upstream do not
//     pile on more pressure
//   - Exponential backoff starting at InitialInterval, doubling up to
//     MaxInterval
//   - Only transient errors retry; see retryableError
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	body, err := c.buildBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	delay := c.cfg.Retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.cfg.Retry.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		completion, err := c.doRequest(ctx, body)
		if err == nil {
			c.logger.Debug("completion succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return completion, nil
		}

		lastErr = err

		// Non-retryable error - fail immediately
		if !retryableError(err) {
			return nil, fmt.Errorf("chat completion: %w", err)
		}

		// Last attempt - don't sleep
		if attempt == c.cfg.Retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.cfg.Retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("chat completion after %d retries (elapsed: %v): %w",
		c.cfg.Retry.MaxRetries, time.Since(start), lastErr)
}

func (c *Client) buildBody(req Request) ([]byte, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("clova: request has no messages")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}

	wireMessages := make([]wireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		wireMessages = append(wireMessages, wireMessage{
			Role:    msg.Role,
			Content: []wireContentPart{{Type: "text", Text: msg.Content}},
		})
	}

	body, err := json.Marshal(wireRequest{
		Messages:          wireMessages,
		TopP:              0.8,
		TopK:              0,
		MaxTokens:         maxTokens,
		Temperature:       temperature,
		RepetitionPenalty: 1.1,
		Stop:              []string{},
		IncludeAiFilters:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return body, nil
}

// doRequest performs a single HTTP attempt and normalizes the response.
func (c *Client) doRequest(ctx context.Context, body []byte) (*Completion, error) {
	url := c.cfg.Host + fmt.Sprintf(completionsPath, c.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.RequestID != "" {
		httpReq.Header.Set("X-NCP-CLOVASTUDIO-REQUEST-ID", c.cfg.RequestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrContractViolation, err)
	}
	if !wire.Result.Message.Content.set {
		return nil, fmt.Errorf("%w: result.message.content missing", ErrContractViolation)
	}

	content := strings.TrimSpace(wire.Result.Message.Content.text)
	if content == "" {
		return nil, fmt.Errorf("%w: empty completion content", ErrContractViolation)
	}

	return &Completion{Content: content}, nil
}

// truncateBody keeps error payloads loggable.
func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
