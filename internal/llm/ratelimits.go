package llm

import (
	"fmt"
	"os"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Limit is the per-provider request budget.
type Limit struct {
	RPM int `yaml:"rpm"`
}

// RateLimits maps providers to request budgets, with a default for
// unlisted providers.
type RateLimits struct {
	Default   Limit            `yaml:"default"`
	Providers map[string]Limit `yaml:"providers"`
}

// LoadRateLimits reads the limits file. A missing file yields the
// built-in default rather than an error.
func LoadRateLimits(path string) (*RateLimits, error) {
	limits := &RateLimits{Default: Limit{RPM: 60}}
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return limits, nil
		}
		return nil, fmt.Errorf("read rate limits %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, limits); err != nil {
		return nil, fmt.Errorf("parse rate limits %s: %w", path, err)
	}
	if limits.Default.RPM <= 0 {
		limits.Default.RPM = 60
	}
	return limits, nil
}

// LimiterFor builds a token bucket for the provider, spreading the
// per-minute budget over seconds with a small burst.
func (r *RateLimits) LimiterFor(provider string) *rate.Limiter {
	rpm := r.Default.RPM
	if lim, ok := r.Providers[provider]; ok && lim.RPM > 0 {
		rpm = lim.RPM
	}
	burst := rpm / 12
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}
