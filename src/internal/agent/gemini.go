package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// geminiReviser calls the Gemini API directly with the GoogleSearch tool
// enabled, so the model can ground its corrections in live web results.
type geminiReviser struct {
	client       *genai.Client
	model        string
	instructions string
	log          *zap.Logger
}

func newGeminiReviser(ctx context.Context, opts Options) (*geminiReviser, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if opts.Structured {
		// Schema-constrained output and the search tool are mutually
		// exclusive on this API; search wins.
		opts.Logger.Warn("structured output is not supported with the gemini provider; using traditional method")
	}
	return &geminiReviser{
		client:       client,
		model:        opts.Model,
		instructions: opts.Instructions,
		log:          opts.Logger,
	}, nil
}

func (g *geminiReviser) Revise(ctx context.Context, entryText string, h Hints, prefs string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0.1),
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}
	prompt := buildPrompt(entryText, h, g.instructions, prefs)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("received empty response from gemini")
	}
	return finishTraditional(text, h, g.log)
}
