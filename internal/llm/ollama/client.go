// Package ollama implements llm.Provider against the Ollama native chat API.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/clinicalgraph/internal/llm"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Format   map[string]any `json:"format,omitempty"`
	Stream   bool           `json:"stream"`
	Options  options        `json:"options"`
}

type options struct {
	NumCtx      int      `json:"num_ctx,omitempty"`
	Temperature float32  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type chatResponse struct {
	Model   string  `json:"model"`
	Message message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (c *Client) Name() string { return "ollama" }

// Chat issues a single non-streaming /api/chat call constrained by req.Schema.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Format: req.Schema,
		Stream: false,
		Options: options{
			NumCtx:      c.cfg.NumCtx,
			Temperature: c.cfg.Temperature,
			Stop:        c.cfg.Stop,
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/chat"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, nil, c.logger)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("ollama chat: %w", err)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return llm.ChatResponse{}, fmt.Errorf("ollama: %s", out.Error)
	}
	return llm.ChatResponse{Model: out.Model, Content: []byte(out.Message.Content)}, nil
}
