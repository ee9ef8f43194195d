// Package openai implements llm.Provider against OpenAI-compatible
// chat/completions endpoints using json_schema structured output.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/clinicalgraph/internal/llm"
)

func (c *Client) Name() string { return "openai" }

// Chat issues a single chat/completions call constrained by req.Schema.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	if req.Schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "clinical_fragment",
				"schema": req.Schema,
			},
		}
	}
	if len(c.cfg.Stop) > 0 {
		body["stop"] = c.cfg.Stop
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("openai chat: %w", err)
	}

	var cc struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("no choices in openai response")
	}
	return llm.ChatResponse{Model: cc.Model, Content: []byte(cc.Choices[0].Message.Content)}, nil
}
