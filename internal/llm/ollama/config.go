package ollama

import (
	"log/slog"
	"net/http"
	"time"
)

// Config for the Ollama client.
type Config struct {
	BaseURL     string        // default http://localhost:11434
	Model       string        // e.g. "hf.co/unsloth/medgemma-27b-text-it-GGUF:Q3_K_S"
	Temperature float32       // 0..2
	NumCtx      int           // context window in tokens
	Stop        []string      // stop markers
	Timeout     time.Duration // http client timeout
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "hf.co/unsloth/medgemma-27b-text-it-GGUF:Q3_K_S"
	}
	if cfg.NumCtx <= 0 {
		cfg.NumCtx = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}
