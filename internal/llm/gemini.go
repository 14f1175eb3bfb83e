package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	maxResponseSize = 8 * 1024 * 1024
)

var ErrEmptyResponse = errors.New("model returned no content")

// Generator produces a JSON document for a prompt and decodes it into dst.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema map[string]any, dst any) error
}

// Gemini calls the generateContent endpoint with a JSON response schema.
type Gemini struct {
	APIKey  string
	Model   string
	BaseURL string

	client *http.Client
}

// NewGemini returns nil when apiKey is empty so callers can treat a missing
// key as "no generator".
func NewGemini(apiKey, model string) *Gemini {
	if apiKey == "" {
		return nil
	}
	return &Gemini{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *Gemini) GenerateJSON(ctx context.Context, prompt string, schema map[string]any, dst any) error {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(g.BaseURL, "/"), url.PathEscape(g.Model), url.QueryEscape(g.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading generate response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decoding generate response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return fmt.Errorf("generate failed (HTTP %d): %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generate failed (HTTP %d)", resp.StatusCode)
	}

	var text strings.Builder
	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	if text.Len() == 0 {
		return ErrEmptyResponse
	}

	if err := json.Unmarshal([]byte(text.String()), dst); err != nil {
		return fmt.Errorf("decoding model output: %w", err)
	}
	return nil
}
