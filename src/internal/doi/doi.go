// Package doi cross-checks DOIs returned by the model against doi.org. A DOI
// the model hallucinated either fails to resolve or resolves to a different
// title; both are flagged for manual review.
package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"bibfixer/src/internal/httpx"
)

var client httpx.Doer = &http.Client{Timeout: 10 * time.Second}

// SetHTTPClient allows tests to inject a fake HTTP client.
func SetHTTPClient(c httpx.Doer) { client = c }

var doiRegex = regexp.MustCompile(`(?i)10\.\d{4,9}/[-._;()/:A-Z0-9]+`)

// Extract pulls a DOI-like token out of an arbitrary string (bare DOI or
// doi.org URL).
func Extract(s string) string {
	return strings.TrimSpace(doiRegex.FindString(strings.TrimSpace(s)))
}

// Metadata is the subset of CSL JSON this tool compares against.
type Metadata struct {
	DOI            string
	Title          string
	ContainerTitle string
	Year           int
}

// Fetch resolves a DOI via doi.org content negotiation (CSL JSON).
func Fetch(ctx context.Context, doi string) (Metadata, error) {
	doi = Extract(doi)
	if doi == "" {
		return Metadata{}, fmt.Errorf("doi: empty or malformed identifier")
	}
	u := "https://doi.org/" + doi
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Metadata{}, err
	}
	req.Header.Set("Accept", "application/vnd.citationstyles.csl+json")
	httpx.SetUA(req)
	resp, err := client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("doi: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Metadata{}, fmt.Errorf("doi: http %d: %s", resp.StatusCode, string(b))
	}
	var csl struct {
		Title          any    `json:"title"`
		ContainerTitle any    `json:"container-title"`
		DOI            string `json:"DOI"`
		Issued         struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"issued"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&csl); err != nil {
		return Metadata{}, fmt.Errorf("doi: decode CSL: %w", err)
	}
	m := Metadata{
		DOI:            strings.TrimSpace(csl.DOI),
		Title:          toString(csl.Title),
		ContainerTitle: toString(csl.ContainerTitle),
	}
	if len(csl.Issued.DateParts) > 0 && len(csl.Issued.DateParts[0]) > 0 {
		m.Year = csl.Issued.DateParts[0][0]
	}
	return m, nil
}

// Verify resolves doi and compares its registered title with wantTitle.
func Verify(ctx context.Context, doi, wantTitle string) error {
	m, err := Fetch(ctx, doi)
	if err != nil {
		return err
	}
	if !TitlesMatch(m.Title, wantTitle) {
		return fmt.Errorf("doi %s resolves to %q, not %q", Extract(doi), m.Title, wantTitle)
	}
	return nil
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// TitlesMatch compares titles ignoring case, punctuation, and TeX braces.
func TitlesMatch(a, b string) bool {
	return normalizeTitle(a) != "" && normalizeTitle(a) == normalizeTitle(b)
}

func normalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	return strings.Join(strings.Fields(nonWord.ReplaceAllString(s, " ")), " ")
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
