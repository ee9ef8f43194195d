package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joseph-ayodele/clinicalgraph/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:   got.Model,
			Message: message{Role: "assistant", Content: `{"confidence":5}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:     srv.URL + "/",
		Model:       "medgemma",
		Temperature: 0.1,
		Stop:        []string{"###"},
	}, nil)

	resp, err := c.Chat(context.Background(), llm.ChatRequest{
		System: "sys",
		User:   "note",
		Schema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, "medgemma", resp.Model)
	assert.JSONEq(t, `{"confidence":5}`, string(resp.Content))

	assert.False(t, got.Stream)
	assert.Equal(t, 4096, got.Options.NumCtx)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-6)
	assert.Equal(t, []string{"###"}, got.Options.Stop)
	assert.Equal(t, "object", got.Format["type"])
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "note", got.Messages[1].Content)
}

func TestChat_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.Chat(context.Background(), llm.ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestChat_ClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := c.Chat(context.Background(), llm.ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Timeout")
}
