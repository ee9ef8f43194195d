package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSystemPrompt(t *testing.T) {
	p := BuildSystemPrompt("P42")
	assert.Contains(t, p, "The Patient ID for this extraction is P42")
	assert.Contains(t, p, "'Unknown'")
	assert.Contains(t, p, "'Redacted'")
	assert.Contains(t, p, "-1")
}

func TestCleanContent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`  {"a":1}  `, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"{\"a\":1}\n###", `{"a":1}`},
		{"{\"a\":1}<|end_of_text|>", `{"a":1}`},
		{"not json", "not json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(CleanContent([]byte(tt.in))), tt.in)
	}
}

func TestSendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		if r.URL.Path == "/fail" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	hdr := map[string]string{"Authorization": "Bearer k"}

	raw, code, err := SendJSON(context.Background(), srv.Client(), srv.URL+"/ok", map[string]any{"x": 1}, hdr, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	_, code, err = SendJSON(context.Background(), srv.Client(), srv.URL+"/fail", map[string]any{}, hdr, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, code)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
}
