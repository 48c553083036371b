package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitializeDisabled(t *testing.T) {
	require.NoError(t, Initialize(Config{Enabled: false}, zap.NewNop()))

	// Helpers stay safe with the no-op tracer.
	ctx, span := StartHTTPSpan(context.Background(), http.MethodGet, "http://example/x")
	require.NotNil(t, span)
	span.End()

	req, err := http.NewRequest(http.MethodGet, "http://example/x", nil)
	require.NoError(t, err)
	InjectTraceparent(ctx, req)
	assert.Empty(t, req.Header.Get("traceparent"), "no-op span must not inject a header")
}

func TestInjectTraceparentWithoutSpan(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example/chat", nil)
	require.NoError(t, err)
	InjectTraceparent(context.Background(), req)
	assert.Empty(t, req.Header.Get("traceparent"))
}
