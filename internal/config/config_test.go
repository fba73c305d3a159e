package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retrieval.Limit != 3 {
		t.Errorf("expected default retrieval limit 3, got %d", cfg.Retrieval.Limit)
	}
	if cfg.Index.Collection != "feedback_emotions" {
		t.Errorf("expected default collection feedback_emotions, got %q", cfg.Index.Collection)
	}
	if cfg.Index.Backend != "qdrant" {
		t.Errorf("expected qdrant backend, got %q", cfg.Index.Backend)
	}
	if cfg.Classifier.Timeout != 10*time.Second {
		t.Errorf("expected classifier timeout 10s, got %s", cfg.Classifier.Timeout)
	}
	if cfg.Generation.Temperature != 0.4 {
		t.Errorf("expected temperature 0.4, got %f", cfg.Generation.Temperature)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RETRIEVAL_LIMIT", "5")
	t.Setenv("INDEX_BACKEND", "bolt")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retrieval.Limit != 5 {
		t.Errorf("expected retrieval limit 5, got %d", cfg.Retrieval.Limit)
	}
	if cfg.Index.Backend != "bolt" {
		t.Errorf("expected bolt backend, got %q", cfg.Index.Backend)
	}
	if cfg.Generation.APIKey != "sk-test" {
		t.Errorf("expected generation api key from env, got %q", cfg.Generation.APIKey)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
embedding:
  provider: openai
  model: text-embedding-3-small
  dimensions: 1536
generation:
  api_key: sk-file
index:
  collection: support
retrieval:
  limit: 4
  max_limit: 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Embedding.APIKey != "sk-file" {
		t.Errorf("expected openai embedding to reuse generation key, got %q", cfg.Embedding.APIKey)
	}
	if cfg.Index.Collection != "support" {
		t.Errorf("expected collection support, got %q", cfg.Index.Collection)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Embedding:  EmbeddingConfig{Provider: "jina", Model: "m", Dimensions: 8},
			Generation: GenerationConfig{Provider: "openai", Model: "g", Temperature: 0.4},
			Index:      IndexConfig{Backend: "bolt", Collection: "c"},
			Retrieval:  RetrievalConfig{Limit: 3, MaxLimit: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}, wantErr: false},
		{name: "unknown embedding provider", mutate: func(c *Config) { c.Embedding.Provider = "word2vec" }, wantErr: true},
		{name: "zero dimensions", mutate: func(c *Config) { c.Embedding.Dimensions = 0 }, wantErr: true},
		{name: "unknown generation provider", mutate: func(c *Config) { c.Generation.Provider = "local" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Index.Backend = "faiss" }, wantErr: true},
		{name: "zero limit", mutate: func(c *Config) { c.Retrieval.Limit = 0 }, wantErr: true},
		{name: "max below limit", mutate: func(c *Config) { c.Retrieval.MaxLimit = 1 }, wantErr: true},
		{name: "bad database driver", mutate: func(c *Config) {
			c.Database.Enabled = true
			c.Database.Driver = "mysql"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
