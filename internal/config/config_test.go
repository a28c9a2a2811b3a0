package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Client.CanonicalSize != 384 || cfg.Client.JPEGQuality != 0.95 {
		t.Errorf("unexpected protocol defaults %+v", cfg.Client)
	}
	if cfg.Client.Timeout() != 0 {
		t.Errorf("Expected no default timeout, got %v", cfg.Client.Timeout())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad endpoint", func(c *Config) { c.Client.EndpointURL = "ftp://x" }},
		{"empty endpoint", func(c *Config) { c.Client.EndpointURL = "" }},
		{"zero size", func(c *Config) { c.Client.CanonicalSize = 0 }},
		{"quality too high", func(c *Config) { c.Client.JPEGQuality = 95 }},
		{"negative timeout", func(c *Config) { c.Client.TimeoutSeconds = -1 }},
		{"zero canvas", func(c *Config) { c.Crop.CanvasSize = 0 }},
		{"unknown backend", func(c *Config) { c.Backend.Kind = "grpc" }},
		{"ollama without model", func(c *Config) { c.Backend.Kind = BackendOllama }},
		{"zero upload limit", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Client.EndpointURL = "http://localhost:5000/predict"
	cfg.Client.TimeoutSeconds = 30
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Client.EndpointURL != cfg.Client.EndpointURL || loaded.Client.Timeout() != 30*time.Second {
		t.Errorf("unexpected loaded config %+v", loaded.Client)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"crop": {"canvas_size": 256}}`), 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Crop.CanvasSize != 256 {
		t.Errorf("Expected canvas 256, got %d", loaded.Crop.CanvasSize)
	}
	if loaded.Client.CanonicalSize != 384 {
		t.Errorf("Expected default canonical size, got %d", loaded.Client.CanonicalSize)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected parse error")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected read error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DERMDX_ENDPOINT", "http://127.0.0.1:5000/predict")
	t.Setenv("DERMDX_BACKEND", BackendOllama)
	t.Setenv("DERMDX_MODEL", "llava")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Client.EndpointURL != "http://127.0.0.1:5000/predict" || cfg.Backend.Kind != BackendOllama || cfg.Backend.Model != "llava" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}
