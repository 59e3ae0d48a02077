package config_test

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/storyweaver/saliency-go/pkg/core/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Saliency.LexicalWeight != 0.3 ||
		cfg.Saliency.SemanticWeight != 0.4 ||
		cfg.Saliency.TraitWeight != 0.2 ||
		cfg.Saliency.RecencyWeight != 0.1 {
		t.Fatalf("unexpected default weights: %+v", cfg.Saliency)
	}
	if cfg.Saliency.RecencyTau != 24*time.Hour {
		t.Fatalf("expected 24h recency tau, got %v", cfg.Saliency.RecencyTau)
	}
	if cfg.Saliency.MaxDPCells != 1<<22 {
		t.Fatalf("expected default DP cell cap, got %d", cfg.Saliency.MaxDPCells)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Fatalf("unexpected default embedding model: %q", cfg.Embedding.Model)
	}
	if cfg.Store.Type != "memory" {
		t.Fatalf("expected memory store default, got %q", cfg.Store.Type)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SALIENCY_EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("SALIENCY_STORE_TYPE", "sqlite")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Fatalf("env override not applied, got %q", cfg.Embedding.Model)
	}
	if cfg.Store.Type != "sqlite" {
		t.Fatalf("env override not applied, got %q", cfg.Store.Type)
	}
}

func TestLoader_EnvKeyTransform(t *testing.T) {
	t.Setenv("SALIENCY_EMBEDDING_API_KEY", "sk-test")

	loader := config.NewLoader()
	if err := loader.LoadEnv("SALIENCY_"); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}

	if got := loader.GetString("embedding.api_key"); got != "sk-test" {
		t.Fatalf("expected transformed key lookup to return sk-test, got %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Saliency: config.SaliencyConfig{
				LexicalWeight:  0.3,
				SemanticWeight: 0.4,
				TraitWeight:    0.2,
				RecencyWeight:  0.1,
			},
			Observability: config.ObservabilityConfig{SampleRate: 1.0},
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{
			name:   "valid",
			mutate: func(c *config.Config) {},
			want:   nil,
		},
		{
			name:   "negative weight",
			mutate: func(c *config.Config) { c.Saliency.LexicalWeight = -0.1 },
			want:   config.ErrInvalidWeights,
		},
		{
			name: "zero weight sum",
			mutate: func(c *config.Config) {
				c.Saliency.LexicalWeight = 0
				c.Saliency.SemanticWeight = 0
				c.Saliency.TraitWeight = 0
				c.Saliency.RecencyWeight = 0
			},
			want: config.ErrInvalidWeights,
		},
		{
			name:   "threshold above one",
			mutate: func(c *config.Config) { c.Saliency.MinScore = 1.5 },
			want:   config.ErrInvalidThreshold,
		},
		{
			name:   "sample rate above one",
			mutate: func(c *config.Config) { c.Observability.SampleRate = 2 },
			want:   config.ErrInvalidSampleRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
