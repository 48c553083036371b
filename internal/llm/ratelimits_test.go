package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRateLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ratelimits.yaml")
	content := []byte("default:\n  rpm: 30\nproviders:\n  openai:\n    rpm: 120\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	limits, err := LoadRateLimits(path)
	require.NoError(t, err)
	assert.Equal(t, 30, limits.Default.RPM)
	assert.Equal(t, 120, limits.Providers["openai"].RPM)
}

func TestLoadRateLimitsMissingFile(t *testing.T) {
	limits, err := LoadRateLimits(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, limits.Default.RPM)
}

func TestLimiterForUsesProviderBudget(t *testing.T) {
	limits := &RateLimits{
		Default:   Limit{RPM: 60},
		Providers: map[string]Limit{"openai": {RPM: 120}},
	}

	assert.InDelta(t, 2.0, float64(limits.LimiterFor("openai").Limit()), 1e-9)
	assert.InDelta(t, 1.0, float64(limits.LimiterFor("unknown").Limit()), 1e-9)
}
