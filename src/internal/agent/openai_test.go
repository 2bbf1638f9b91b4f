package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"bibfixer/src/internal/bibtex"
)

const originalEntry = `@article{vaswani2017attention,
  title = {Attention is all you need},
  author = {Vaswani, A.},
  year = {2017}
}`

// fakeDoer replays a canned response and captures the request.
type fakeDoer struct {
	status   int
	body     string
	lastReq  *http.Request
	lastBody []byte
	err      error
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	if req.Body != nil {
		f.lastBody, _ = io.ReadAll(req.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     http.Header{},
	}, nil
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func testHints() Hints {
	return Hints{Title: "Attention Is All You Need", FirstAuthor: "Vaswani, A.", CitationKey: "vaswani2017attention"}
}

func newTestReviser(d *fakeDoer, structured bool) *chatReviser {
	return newChatReviser(Options{
		Provider:     "openai",
		Model:        "gpt-5-mini-2025-08-07",
		APIKey:       "sk-test",
		BaseURL:      "https://api.openai.com/v1",
		Instructions: "1. Correct the metadata.",
		Structured:   structured,
		HTTPClient:   d,
		Logger:       zap.NewNop(),
	})
}

func TestReviseTraditional(t *testing.T) {
	revised := "@article{vaswani2017attention,\n  title = {{Attention Is All You Need}},\n  author = {Vaswani, Ashish},\n  year = {2017}\n}"
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(revised)}
	r := newTestReviser(d, false)
	out, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if out != revised {
		t.Fatalf("output mismatch:\n%s", out)
	}
	if got := d.lastReq.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("auth header: %q", got)
	}
	if d.lastReq.URL.String() != "https://api.openai.com/v1/chat/completions" {
		t.Fatalf("url: %s", d.lastReq.URL)
	}
}

func TestRevisePromptContents(t *testing.T) {
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(originalEntry)}
	r := newTestReviser(d, false)
	if _, err := r.Revise(context.Background(), originalEntry, testHints(), "abbreviate journal names"); err != nil {
		t.Fatalf("Revise: %v", err)
	}
	var req struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(d.lastBody, &req); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if req.Model != "gpt-5-mini-2025-08-07" || req.Temperature != 0.1 {
		t.Fatalf("model/temperature: %q %v", req.Model, req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("messages: %+v", req.Messages)
	}
	user := req.Messages[1].Content
	for _, want := range []string{
		`Title: "Attention Is All You Need"`,
		"First Author: Vaswani, A.",
		"Citation Key: vaswani2017attention",
		"```bibtex",
		"1. Correct the metadata.",
		"abbreviate journal names",
		"Return ONLY the corrected BibTeX entry",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestReviseOpenRouterHeaders(t *testing.T) {
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(originalEntry)}
	r := newChatReviser(Options{
		Provider:   "openrouter",
		Model:      "openai/gpt-5-mini",
		APIKey:     "or-test",
		BaseURL:    "https://openrouter.ai/api/v1",
		Referer:    "https://me.example",
		SiteTitle:  "BibFixer",
		HTTPClient: d,
		Logger:     zap.NewNop(),
	})
	if _, err := r.Revise(context.Background(), originalEntry, testHints(), ""); err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if got := d.lastReq.Header.Get("HTTP-Referer"); got != "https://me.example" {
		t.Fatalf("referer header: %q", got)
	}
	if got := d.lastReq.Header.Get("X-Title"); got != "BibFixer" {
		t.Fatalf("title header: %q", got)
	}
	if !strings.HasPrefix(d.lastReq.URL.String(), "https://openrouter.ai/api/v1/") {
		t.Fatalf("url: %s", d.lastReq.URL)
	}
}

func TestReviseHTTPError(t *testing.T) {
	d := &fakeDoer{status: http.StatusTooManyRequests, body: `{"error":"rate limited"}`}
	r := newTestReviser(d, false)
	_, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err == nil || !strings.Contains(err.Error(), "http 429") {
		t.Fatalf("expected http error, got %v", err)
	}
}

func TestReviseEmptyChoices(t *testing.T) {
	d := &fakeDoer{status: http.StatusOK, body: `{"choices":[]}`}
	r := newTestReviser(d, false)
	if _, err := r.Revise(context.Background(), originalEntry, testHints(), ""); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestReviseStripsFences(t *testing.T) {
	fenced := "```bibtex\n" + originalEntry + "\n```"
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(fenced)}
	r := newTestReviser(d, false)
	out, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if strings.Contains(out, "```") {
		t.Fatalf("fences not stripped:\n%s", out)
	}
}

func TestRevisePassesThroughInvalidBibTeX(t *testing.T) {
	junk := "I could not find this paper, but here is my best guess at the details."
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(junk)}
	core, logs := observer.New(zap.WarnLevel)
	r := newChatReviser(Options{
		Provider:   "openai",
		Model:      "gpt-5-mini-2025-08-07",
		APIKey:     "sk-test",
		BaseURL:    "https://api.openai.com/v1",
		HTTPClient: d,
		Logger:     zap.New(core),
	})
	out, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err != nil {
		t.Fatalf("invalid output must not fail the call: %v", err)
	}
	if out != junk {
		t.Fatalf("raw text not passed through:\n%s", out)
	}
	if logs.FilterMessageSnippet("may not be valid BibTeX").Len() != 1 {
		t.Fatalf("expected one warning, got %v", logs.All())
	}
}

func TestReviseRestoresCitationKey(t *testing.T) {
	changed := strings.Replace(originalEntry, "vaswani2017attention", "attention2017", 1)
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(changed)}
	r := newTestReviser(d, false)
	out, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	recs, err := bibtex.Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if recs[0].Key != "vaswani2017attention" {
		t.Fatalf("citation key not restored: %q", recs[0].Key)
	}
}

func TestReviseRestoresCitationKeyParenDelimited(t *testing.T) {
	changed := "@article(attention2017,\n  title = {Attention is all you need},\n  author = {Vaswani, A.},\n  year = {2017}\n)"
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(changed)}
	r := newTestReviser(d, false)
	out, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	recs, err := bibtex.Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if recs[0].Key != "vaswani2017attention" {
		t.Fatalf("citation key not restored in paren-delimited entry: %q", recs[0].Key)
	}
}

func TestReviseStructured(t *testing.T) {
	structured := map[string]string{
		"entry_type":   "article",
		"citation_key": "somethingelse",
		"author":       "Vaswani, Ashish and Shazeer, Noam",
		"title":        "Attention Is All You Need",
		"year":         "2017",
		"journal":      "Advances in Neural Information Processing Systems",
		"pages":        "5998--6008",
	}
	sb, _ := json.Marshal(structured)
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(string(sb))}
	r := newTestReviser(d, true)
	out, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if !strings.Contains(string(d.lastBody), "json_schema") {
		t.Fatalf("request missing response_format")
	}
	recs, err := bibtex.Parse(out)
	if err != nil {
		t.Fatalf("structured output not valid BibTeX: %v\n%s", err, out)
	}
	r0 := recs[0]
	if r0.Key != "vaswani2017attention" {
		t.Fatalf("citation key not enforced: %q", r0.Key)
	}
	if r0.Fields["pages"] != "5998--6008" {
		t.Fatalf("pages: %q", r0.Fields["pages"])
	}
	if !strings.Contains(out, "{{Attention Is All You Need}}") {
		t.Fatalf("title capitalization braces missing:\n%s", out)
	}
}

func TestReviseStructuredFallsBack(t *testing.T) {
	// First call returns junk JSON, second call (fallback) returns a valid
	// entry. The fake returns the same body both times, so use output that is
	// invalid as structured JSON but fine as free text.
	d := &fakeDoer{status: http.StatusOK, body: chatResponse(originalEntry)}
	r := newTestReviser(d, true)
	out, err := r.Revise(context.Background(), originalEntry, testHints(), "")
	if err != nil {
		t.Fatalf("Revise with fallback: %v", err)
	}
	if !strings.Contains(out, "@article{vaswani2017attention") {
		t.Fatalf("fallback output:\n%s", out)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "llama-farm", APIKey: "x"})
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "openai"})
	if err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := &Fake{Out: "ok"}
	got, err := f.Revise(context.Background(), "entry", testHints(), "prefs")
	if err != nil || got != "ok" {
		t.Fatalf("fake: %q %v", got, err)
	}
	if len(f.Calls) != 1 || f.Calls[0].Prefs != "prefs" {
		t.Fatalf("calls: %+v", f.Calls)
	}
}

func TestHintsFor(t *testing.T) {
	recs, err := bibtex.Parse(originalEntry)
	if err != nil {
		t.Fatal(err)
	}
	h := HintsFor(recs[0])
	if h.CitationKey != "vaswani2017attention" || h.FirstAuthor != "Vaswani, A." {
		t.Fatalf("hints: %+v", h)
	}
}

func TestBuildPromptUnknownAuthor(t *testing.T) {
	p := buildPrompt("@misc{x, title={T}}", Hints{Title: "T", CitationKey: "x"}, "", "")
	if !strings.Contains(p, "First Author: (unknown)") {
		t.Fatalf("prompt: %s", p)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```bibtex\n@misc{x}\n```", "@misc{x}"},
		{"```\n@misc{x}\n```", "@misc{x}"},
		{"@misc{x}", "@misc{x}"},
	}
	for i, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("case %d: %q", i, got)
		}
	}
}
