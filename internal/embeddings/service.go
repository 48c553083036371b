// Package embeddings provides the dense query embedding client used by
// the acceptance memory and the router, with local and Redis cache
// tiers in front of an OpenAI-compatible embeddings endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/circuitbreaker"
	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/tracing"
)

// Config holds embedding service configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	CacheTTL   time.Duration
	LRUSize    int
}

// Service computes query embeddings with an LRU -> Redis -> HTTP
// lookup chain.
type Service struct {
	cfg    Config
	http   *circuitbreaker.HTTPWrapper
	local  *LocalLRU
	redis  Cache
	logger *zap.Logger
}

// NewService creates the embedding service. redisCache may be nil when
// no shared tier is available.
func NewService(cfg Config, redisCache Cache, logger *zap.Logger) *Service {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	client := &http.Client{Timeout: cfg.Timeout}
	return &Service{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(client, "embedding-http", "embeddings", logger),
		local:  NewLocalLRU(cfg.LRUSize),
		redis:  redisCache,
		logger: logger,
	}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text, checking the cache
// tiers before calling the endpoint. The vector dimension is verified
// against the configured size.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := MakeKey(s.cfg.Model, text)

	if vec, ok := s.local.Get(ctx, key); ok {
		return vec, nil
	}
	if s.redis != nil {
		if vec, ok := s.redis.Get(ctx, key); ok {
			s.local.Set(ctx, key, vec, s.cfg.CacheTTL)
			return vec, nil
		}
	}

	start := time.Now()
	vec, err := s.fetch(ctx, text)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordEmbeddingMetrics(s.cfg.Model, status, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	s.local.Set(ctx, key, vec, s.cfg.CacheTTL)
	if s.redis != nil {
		s.redis.Set(ctx, key, vec, s.cfg.CacheTTL)
	}
	return vec, nil
}

func (s *Service) fetch(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Input: []string{text}, Model: s.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	url := s.cfg.BaseURL + "/embeddings"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}

	raw := decoded.Data[0].Embedding
	if len(raw) != s.cfg.Dimensions {
		return nil, fmt.Errorf("embedding dimension %d, want %d", len(raw), s.cfg.Dimensions)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
