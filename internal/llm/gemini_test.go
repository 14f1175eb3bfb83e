package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiWithoutKey(t *testing.T) {
	assert.Nil(t, NewGemini("", "gemini-2.0-flash-exp"))
}

func TestGenerateJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		var req generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.Equal(t, "plan Seoul", req.Contents[0].Parts[0].Text)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"selectedCity\":\"Seoul\"}"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini("secret", "test-model")
	g.BaseURL = srv.URL

	var out struct {
		SelectedCity string `json:"selectedCity"`
	}
	require.NoError(t, g.GenerateJSON(context.Background(), "plan Seoul", map[string]any{"type": "OBJECT"}, &out))
	assert.Equal(t, "Seoul", out.SelectedCity)
}

func TestGenerateJSONErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"not json", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`},
		{"garbage", http.StatusBadGateway, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewGemini("k", "m")
			g.BaseURL = srv.URL
			var out map[string]any
			assert.Error(t, g.GenerateJSON(context.Background(), "p", nil, &out))
		})
	}
}
