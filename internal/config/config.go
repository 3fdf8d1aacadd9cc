// Package config loads gateway configuration from the environment at
// startup, per spec §6. Nothing here is re-read after Load returns.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/lattice-run/modgate/internal/schema"
)

// AnalyzerConfig holds the per-analyzer settings resolved from
// <ANALYZER>_URL, <ANALYZER>_API_KEY and the optional
// <ANALYZER>_TIMEOUT_MS override.
type AnalyzerConfig struct {
	Name           string
	URL            string
	APIKey         string
	PerCallTimeout time.Duration // falls back to Config.PerCallTimeout when zero
}

// Config holds all configuration for the gateway, loaded once at startup.
type Config struct {
	Host string
	Port int

	GatewayAPIKeys []string

	Analyzers map[string]AnalyzerConfig

	PerCallTimeout time.Duration
	GlobalDeadline time.Duration

	BreakerFailureThreshold int
	BreakerWindow           int
	BreakerRatioThreshold   float64
	BreakerMinimumSamples   int
	BreakerCooldown         time.Duration

	MaxTextBytes int
	MaskToken    string
}

// AnalyzerURLs returns a name->URL map, mirroring the teacher's
// config.Config.ModelURLs() shape, generalized to the fixed analyzer list.
func (c *Config) AnalyzerURLs() map[string]string {
	urls := make(map[string]string, len(c.Analyzers))
	for name, a := range c.Analyzers {
		urls[name] = a.URL
	}
	return urls
}

// Load loads configuration from the environment using koanf's env
// provider, following the pattern in the polyglot-llm-gateway reference
// repo: flat env.Provider with no prefix, lower-cased keys, explicit
// defaults seeded for unset keys before the values are read.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	seedDefault(k, "host", "0.0.0.0")
	seedDefault(k, "port", 8080)
	seedDefault(k, "per_call_timeout_ms", 4000)
	seedDefault(k, "global_deadline_ms", 8000)
	seedDefault(k, "breaker_failure_threshold", 5)
	seedDefault(k, "breaker_window", 20)
	seedDefault(k, "breaker_ratio_threshold", 0.5)
	seedDefault(k, "breaker_minimum_samples", 10)
	seedDefault(k, "breaker_cooldown_ms", 30000)
	seedDefault(k, "max_text_bytes", 32768)
	seedDefault(k, "mask_token", "***")

	cfg := &Config{
		Host:                    k.String("host"),
		Port:                    k.Int("port"),
		GatewayAPIKeys:          splitCSV(k.String("gateway_api_keys")),
		PerCallTimeout:          time.Duration(k.Int64("per_call_timeout_ms")) * time.Millisecond,
		GlobalDeadline:          time.Duration(k.Int64("global_deadline_ms")) * time.Millisecond,
		BreakerFailureThreshold: k.Int("breaker_failure_threshold"),
		BreakerWindow:           k.Int("breaker_window"),
		BreakerRatioThreshold:   k.Float64("breaker_ratio_threshold"),
		BreakerMinimumSamples:   k.Int("breaker_minimum_samples"),
		BreakerCooldown:         time.Duration(k.Int64("breaker_cooldown_ms")) * time.Millisecond,
		MaxTextBytes:            k.Int("max_text_bytes"),
		MaskToken:               k.String("mask_token"),
		Analyzers:               make(map[string]AnalyzerConfig, len(schema.PriorityOrder)),
	}

	for _, name := range schema.PriorityOrder {
		prefix := strings.ToLower(name)
		ac := AnalyzerConfig{
			Name:   name,
			URL:    k.String(prefix + "_url"),
			APIKey: k.String(prefix + "_api_key"),
		}
		if ac.URL == "" {
			ac.URL = defaultAnalyzerURL(name)
		}
		if ms := k.Int64(prefix + "_timeout_ms"); ms > 0 {
			ac.PerCallTimeout = time.Duration(ms) * time.Millisecond
		}
		cfg.Analyzers[name] = ac
	}

	return cfg, nil
}

func seedDefault(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func defaultAnalyzerURL(name string) string {
	return fmt.Sprintf("http://analyzer-%s:8000", name)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
