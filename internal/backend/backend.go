// Package backend builds the classifier selected in the configuration.
package backend

import (
	"fmt"

	"github.com/menta2k/derm-dx/internal/config"
	"github.com/menta2k/derm-dx/pkg/client"
	"github.com/menta2k/derm-dx/pkg/diagnosis"
	"github.com/menta2k/derm-dx/pkg/llamacpp"
	"github.com/menta2k/derm-dx/pkg/ollama"
)

// Default server URLs for local backends
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// New creates the classifier for cfg.Backend.Kind
func New(cfg *config.Config) (client.Classifier, error) {
	switch cfg.Backend.Kind {
	case config.BackendHTTP, "":
		c, err := diagnosis.NewClient(diagnosis.Config{
			EndpointURL:          cfg.Client.EndpointURL,
			CanonicalSize:        cfg.Client.CanonicalSize,
			JPEGQuality:          cfg.Client.JPEGQuality,
			Timeout:              cfg.Client.Timeout(),
			RequireSuccessStatus: cfg.Client.RequireSuccessStatus,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create diagnosis client: %w", err)
		}
		return c, nil
	case config.BackendOllama:
		url := cfg.Backend.URL
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url, cfg.Backend.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		c.SetImageFormat(cfg.Client.CanonicalSize, cfg.Client.JPEGQuality)
		return c, nil
	case config.BackendLlamaCpp:
		url := cfg.Backend.URL
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url, cfg.Backend.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		c.SetImageFormat(cfg.Client.CanonicalSize, cfg.Client.JPEGQuality)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use %q, %q or %q)",
			cfg.Backend.Kind, config.BackendHTTP, config.BackendOllama, config.BackendLlamaCpp)
	}
}
