package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Backend kinds
const (
	BackendHTTP     = "http"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Client  ClientConfig  `json:"client"`
	Crop    CropConfig    `json:"crop"`
	Backend BackendConfig `json:"backend"`
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
}

// ClientConfig holds configuration for the diagnosis client
type ClientConfig struct {
	EndpointURL          string  `json:"endpoint_url"`
	CanonicalSize        int     `json:"canonical_size"`
	JPEGQuality          float64 `json:"jpeg_quality"`
	TimeoutSeconds       int     `json:"timeout_seconds"`
	RequireSuccessStatus bool    `json:"require_success_status"`
}

// CropConfig holds configuration for the interactive crop canvas
type CropConfig struct {
	CanvasSize int `json:"canvas_size"`
}

// BackendConfig selects the classifier used by the CLI and the server
type BackendConfig struct {
	Kind  string `json:"kind"`
	URL   string `json:"url"`
	Model string `json:"model"`
}

// ServerConfig holds configuration for the upload/prediction server
type ServerConfig struct {
	Addr           string `json:"addr"`
	UploadDir      string `json:"upload_dir"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
}

// LoggingConfig holds configuration for logging
type LoggingConfig struct {
	Level string `json:"level"`
}

// DefaultEndpoint is the hosted skin lesion classifier
const DefaultEndpoint = "https://cedricnagata-skin-lesion-classifier--skin-lesion-cla-d628c3-dev.modal.run/predict"

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			EndpointURL:   DefaultEndpoint,
			CanonicalSize: 384,
			JPEGQuality:   0.95,
		},
		Crop: CropConfig{
			CanvasSize: 512,
		},
		Backend: BackendConfig{
			Kind: BackendHTTP,
		},
		Server: ServerConfig{
			Addr:           ":5000",
			UploadDir:      "uploads",
			MaxUploadBytes: 10 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides values from DERMDX_* environment variables
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DERMDX_ENDPOINT"); v != "" {
		c.Client.EndpointURL = v
	}
	if v := os.Getenv("DERMDX_BACKEND"); v != "" {
		c.Backend.Kind = v
	}
	if v := os.Getenv("DERMDX_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("DERMDX_MODEL"); v != "" {
		c.Backend.Model = v
	}
	if v := os.Getenv("DERMDX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Timeout returns the client timeout; zero means none
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Client.EndpointURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("client.endpoint_url must be an http(s) URL")
	}

	if c.Client.CanonicalSize < 1 {
		return fmt.Errorf("client.canonical_size must be positive")
	}

	if c.Client.JPEGQuality <= 0 || c.Client.JPEGQuality > 1 {
		return fmt.Errorf("client.jpeg_quality must be in (0, 1]")
	}

	if c.Client.TimeoutSeconds < 0 {
		return fmt.Errorf("client.timeout_seconds cannot be negative")
	}

	if c.Crop.CanvasSize < 1 {
		return fmt.Errorf("crop.canvas_size must be positive")
	}

	switch c.Backend.Kind {
	case BackendHTTP:
	case BackendOllama, BackendLlamaCpp:
		if c.Backend.Model == "" {
			return fmt.Errorf("backend.model is required for backend %q", c.Backend.Kind)
		}
	default:
		return fmt.Errorf("backend.kind must be one of %q, %q, %q", BackendHTTP, BackendOllama, BackendLlamaCpp)
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "derm-dx", "config.json")
}
