package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bibfixer/src/internal/bibtex"
	"bibfixer/src/internal/httpx"
	"bibfixer/src/internal/schema"
)

// chatReviser talks to any OpenAI-compatible chat-completions endpoint
// (api.openai.com or openrouter.ai).
type chatReviser struct {
	client       httpx.Doer
	baseURL      string
	apiKey       string
	model        string
	referer      string
	siteTitle    string
	instructions string
	structured   bool
	log          *zap.Logger
}

func newChatReviser(opts Options) *chatReviser {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &chatReviser{
		client:       client,
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		model:        opts.Model,
		referer:      opts.Referer,
		siteTitle:    opts.SiteTitle,
		instructions: opts.Instructions,
		structured:   opts.Structured,
		log:          opts.Logger,
	}
}

func (c *chatReviser) Revise(ctx context.Context, entryText string, h Hints, prefs string) (string, error) {
	if c.structured {
		out, err := c.reviseStructured(ctx, entryText, h, prefs)
		if err == nil {
			return out, nil
		}
		c.log.Warn("structured output failed, falling back to traditional method", zap.Error(err))
	}
	return c.reviseTraditional(ctx, entryText, h, prefs)
}

func (c *chatReviser) reviseTraditional(ctx context.Context, entryText string, h Hints, prefs string) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"temperature": 0.1,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(entryText, h, c.instructions, prefs)},
		},
	}
	content, err := c.complete(ctx, body)
	if err != nil {
		return "", err
	}
	return finishTraditional(content, h, c.log)
}

func (c *chatReviser) reviseStructured(ctx context.Context, entryText string, h Hints, prefs string) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"temperature": 0.1,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(entryText, h, c.instructions, prefs)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "bibtex_entry",
				"strict": true,
				"schema": schema.JSONSchema(),
			},
		},
	}
	content, err := c.complete(ctx, body)
	if err != nil {
		return "", err
	}
	var e schema.Entry
	if err := json.Unmarshal([]byte(stripFences(content)), &e); err != nil {
		return "", fmt.Errorf("decode structured entry: %w", err)
	}
	if h.CitationKey != "" && e.CitationKey != h.CitationKey {
		c.log.Warn("model changed citation key; restoring original",
			zap.String("got", e.CitationKey),
			zap.String("want", h.CitationKey))
		e.CitationKey = h.CitationKey
	}
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("structured entry invalid: %w", err)
	}
	return bibtex.Render(e.Record()), nil
}

// complete sends one chat-completions request and returns the first choice's
// message content.
func (c *chatReviser) complete(ctx context.Context, body map[string]any) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.siteTitle != "" {
		req.Header.Set("X-Title", c.siteTitle)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call model API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("model API: http %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("model API: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}
