// Package llm is the chat-completions client shared by every agent.
// It owns transient-failure retry with jittered exponential backoff
// and per-provider request pacing, so callers never retry themselves.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aesop-bio/aesop/internal/circuitbreaker"
	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/tracing"
)

// Completer is the interface agents depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single completion call.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Provider    string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg     Config
	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a client. limits may be nil, disabling pacing.
func NewClient(cfg Config, limits *RateLimits, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	var limiter *rate.Limiter
	if limits != nil {
		limiter = limits.LimiterFor(cfg.Provider)
	}

	client := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:     cfg,
		http:    circuitbreaker.NewHTTPWrapper(client, "llm-http", "llm", logger),
		limiter: limiter,
		logger:  logger,
	}
}

// retryableError marks failures worth another attempt: throttling,
// server errors, and timeouts. Everything else is terminal.
type retryableError struct {
	reason string
	err    error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Complete runs the request with up to MaxAttempts tries. Backoff
// doubles from BaseDelay with +/-20% jitter.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	delay := c.cfg.BaseDelay

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		start := time.Now()
		out, err := c.do(ctx, req)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordLLMMetrics(c.cfg.Model, status, time.Since(start).Seconds())

		if err == nil {
			return out, nil
		}
		lastErr = err

		var re *retryableError
		if !errors.As(err, &re) || attempt == c.cfg.MaxAttempts {
			break
		}

		metrics.LLMRetries.WithLabelValues(re.reason).Inc()
		c.logger.Warn("LLM request failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("reason", re.reason),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(withJitter(delay)):
		}
		delay *= 2
	}

	return "", fmt.Errorf("llm completion failed: %w", lastErr)
}

// withJitter spreads a delay by +/-20%.
func withJitter(d time.Duration) time.Duration {
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) do(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return "", &retryableError{reason: "timeout", err: err}
		}
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return "", &retryableError{reason: "throttled", err: fmt.Errorf("llm endpoint returned 429")}
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return "", &retryableError{reason: "server_error", err: fmt.Errorf("llm endpoint returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Transport-level failures (connection refused, reset) are treated
	// as transient too.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
