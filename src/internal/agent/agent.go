// Package agent revises BibTeX entries by calling a model provider. The
// Reviser interface abstracts the provider so commands and tests can swap in
// fakes.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bibfixer/src/internal/bibtex"
	"bibfixer/src/internal/config"
	"bibfixer/src/internal/httpx"
)

// systemPrompt frames every revision request.
const systemPrompt = "You are a precise academic assistant that corrects and completes BibTeX entries. " +
	"Always return valid BibTeX format. Use your knowledge and web search results to correct and complete the entry as best as you can."

// Hints carries the searchable facts extracted from the original entry.
type Hints struct {
	Title       string
	FirstAuthor string
	CitationKey string
}

// HintsFor extracts search hints from a parsed record.
func HintsFor(r bibtex.Record) Hints {
	return Hints{
		Title:       r.Title(),
		FirstAuthor: r.FirstAuthor(),
		CitationKey: r.Key,
	}
}

// Reviser produces a corrected version of a single BibTeX entry.
type Reviser interface {
	Revise(ctx context.Context, entryText string, hints Hints, prefs string) (string, error)
}

// Options configures a Reviser.
type Options struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	Referer      string // OpenRouter attribution header
	SiteTitle    string // OpenRouter attribution header
	Instructions string
	Structured   bool
	HTTPClient   httpx.Doer
	Logger       *zap.Logger
}

// New builds a Reviser for the configured provider.
func New(ctx context.Context, opts Options) (Reviser, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", opts.Provider)
	}
	switch opts.Provider {
	case config.ProviderGemini:
		return newGeminiReviser(ctx, opts)
	case config.ProviderOpenAI, config.ProviderOpenRouter, "":
		return newChatReviser(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", opts.Provider)
	}
}

// buildPrompt assembles the user message: search hints, the original entry,
// the instruction template, and optional user preferences.
func buildPrompt(entryText string, h Hints, instructions, prefs string) string {
	var b strings.Builder
	b.WriteString("Please search the web for the following academic work and correct/complete its BibTeX entry:\n\n")
	fmt.Fprintf(&b, "Title: %q\n", h.Title)
	firstAuthor := h.FirstAuthor
	if firstAuthor == "" {
		firstAuthor = "(unknown)"
	}
	fmt.Fprintf(&b, "First Author: %s\n", firstAuthor)
	if h.CitationKey != "" {
		fmt.Fprintf(&b, "Citation Key: %s (do not change it)\n", h.CitationKey)
	}
	b.WriteString("\nOriginal BibTeX entry:\n```bibtex\n")
	b.WriteString(strings.TrimSpace(entryText))
	b.WriteString("\n```\n")
	if strings.TrimSpace(instructions) != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(instructions))
		b.WriteString("\n")
	}
	if strings.TrimSpace(prefs) != "" {
		b.WriteString("\nApply these user preferences to the formatting:\n")
		b.WriteString(strings.TrimSpace(prefs))
		b.WriteString("\n")
	}
	b.WriteString("\nReturn ONLY the corrected BibTeX entry, properly formatted. Do not include any explanation or additional text.\n")
	return b.String()
}

// stripFences removes a markdown code fence the model may wrap around the
// entry despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range []string{"```bibtex", "```BibTeX", "```"} {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// finishTraditional validates free-text model output. Unparseable output is
// passed through with a warning for manual review; a changed citation key is
// restored in place.
func finishTraditional(text string, h Hints, log *zap.Logger) (string, error) {
	text = stripFences(text)
	if text == "" {
		return "", fmt.Errorf("received empty response from model")
	}
	recs, err := bibtex.Parse(text)
	if err != nil || len(recs) == 0 {
		log.Warn("model response may not be valid BibTeX", zap.Error(err))
		return text, nil
	}
	if h.CitationKey != "" && recs[0].Key != h.CitationKey {
		log.Warn("model changed citation key; restoring original",
			zap.String("got", recs[0].Key),
			zap.String("want", h.CitationKey))
		// the parser accepts both @type{key and @type(key
		for _, d := range []string{"{", "("} {
			if strings.Contains(text, d+recs[0].Key) {
				text = strings.Replace(text, d+recs[0].Key, d+h.CitationKey, 1)
				break
			}
		}
	}
	return text, nil
}
