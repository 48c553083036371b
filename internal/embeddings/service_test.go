package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func embeddingServer(t *testing.T, dims int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.Equal(t, "/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)

		vec := make([]float64, dims)
		for i := range vec {
			vec[i] = 0.01 * float64(i%7)
		}
		resp := map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vec}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestService(t *testing.T, baseURL string, dims int) *Service {
	t.Helper()
	return NewService(Config{
		BaseURL:    baseURL,
		Model:      "test-embed",
		Dimensions: dims,
		Timeout:    2 * time.Second,
	}, nil, zap.NewNop())
}

func TestEmbedFetchesAndCaches(t *testing.T) {
	calls := 0
	srv := embeddingServer(t, 8, &calls)
	defer srv.Close()

	svc := newTestService(t, srv.URL, 8)
	ctx := context.Background()

	vec, err := svc.Embed(ctx, "metformin cardiovascular outcomes")
	require.NoError(t, err)
	assert.Len(t, vec, 8)

	// Second call for the same text is served from the local LRU.
	_, err = svc.Embed(ctx, "metformin cardiovascular outcomes")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	calls := 0
	srv := embeddingServer(t, 8, &calls)
	defer srv.Close()

	svc := newTestService(t, srv.URL, 1536)
	_, err := svc.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL, 8)
	_, err := svc.Embed(context.Background(), "q")
	assert.Error(t, err)
}

func TestLocalLRUEviction(t *testing.T) {
	lru := NewLocalLRU(2)
	ctx := context.Background()

	lru.Set(ctx, "a", []float32{1}, time.Minute)
	lru.Set(ctx, "b", []float32{2}, time.Minute)
	_, ok := lru.Get(ctx, "a") // refresh a
	require.True(t, ok)
	lru.Set(ctx, "c", []float32{3}, time.Minute)

	_, ok = lru.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = lru.Get(ctx, "a")
	assert.True(t, ok)
}

func TestLocalLRUTTL(t *testing.T) {
	lru := NewLocalLRU(4)
	ctx := context.Background()

	lru.Set(ctx, "a", []float32{1}, -time.Second)
	_, ok := lru.Get(ctx, "a")
	assert.False(t, ok)
}

func TestMakeKeyDistinguishesModels(t *testing.T) {
	assert.NotEqual(t, MakeKey("m1", "text"), MakeKey("m2", "text"))
	assert.Equal(t, MakeKey("m1", "text"), MakeKey("m1", "text"))
}
