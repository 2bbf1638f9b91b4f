// Package schema models the structured form of a corrected BibTeX entry as
// returned by structured-output model calls.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"bibfixer/src/internal/bibtex"
)

// Entry is the structured representation of one corrected entry. Field names
// mirror standard BibTeX fields; optional fields are omitted when empty.
type Entry struct {
	EntryType    string `json:"entry_type"`
	CitationKey  string `json:"citation_key"`
	Author       string `json:"author"`
	Title        string `json:"title"`
	Year         string `json:"year"`
	Journal      string `json:"journal,omitempty"`
	Booktitle    string `json:"booktitle,omitempty"`
	Volume       string `json:"volume,omitempty"`
	Number       string `json:"number,omitempty"`
	Pages        string `json:"pages,omitempty"`
	Publisher    string `json:"publisher,omitempty"`
	Address      string `json:"address,omitempty"`
	Series       string `json:"series,omitempty"`
	Edition      string `json:"edition,omitempty"`
	Chapter      string `json:"chapter,omitempty"`
	Note         string `json:"note,omitempty"`
	Organization string `json:"organization,omitempty"`
	School       string `json:"school,omitempty"`
	Institution  string `json:"institution,omitempty"`
}

// EntryTypes is the whitelist of accepted BibTeX entry types.
var EntryTypes = []string{
	"article",
	"inproceedings",
	"book",
	"incollection",
	"inbook",
	"misc",
	"phdthesis",
	"mastersthesis",
	"techreport",
	"unpublished",
}

// ValidType reports whether t is an accepted entry type.
func ValidType(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, v := range EntryTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Validate applies the structural rules every corrected entry must satisfy.
func (e *Entry) Validate() error {
	if !ValidType(e.EntryType) {
		return fmt.Errorf("invalid entry type: %q", e.EntryType)
	}
	if strings.TrimSpace(e.CitationKey) == "" {
		return errors.New("citation_key is required")
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(e.Author) == "" {
		return errors.New("author is required")
	}
	y := strings.TrimSpace(e.Year)
	if len(y) != 4 {
		return fmt.Errorf("year must be four digits, got %q", e.Year)
	}
	for _, c := range y {
		if c < '0' || c > '9' {
			return fmt.Errorf("year must be four digits, got %q", e.Year)
		}
	}
	return nil
}

// Record converts the structured entry into a renderable BibTeX record. The
// title gains an extra brace layer so its capitalization is preserved by
// downstream BibTeX processors.
func (e Entry) Record() bibtex.Record {
	fields := map[string]string{
		"author": e.Author,
		"title":  "{" + strings.TrimSpace(e.Title) + "}",
		"year":   e.Year,
	}
	opt := map[string]string{
		"journal":      e.Journal,
		"booktitle":    e.Booktitle,
		"volume":       e.Volume,
		"number":       e.Number,
		"pages":        e.Pages,
		"publisher":    e.Publisher,
		"address":      e.Address,
		"series":       e.Series,
		"edition":      e.Edition,
		"chapter":      e.Chapter,
		"note":         e.Note,
		"organization": e.Organization,
		"school":       e.School,
		"institution":  e.Institution,
	}
	for k, v := range opt {
		if strings.TrimSpace(v) != "" {
			fields[k] = v
		}
	}
	return bibtex.Record{
		Type:   strings.ToLower(strings.TrimSpace(e.EntryType)),
		Key:    strings.TrimSpace(e.CitationKey),
		Fields: fields,
	}
}

// JSONSchema returns the JSON Schema document sent to providers that support
// schema-constrained output. Strict mode requires every property to be listed
// in required, so optional fields are nullable rather than omitted.
func JSONSchema() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	opt := func(desc string) map[string]any {
		return map[string]any{"type": []string{"string", "null"}, "description": desc}
	}
	props := map[string]any{
		"entry_type": map[string]any{
			"type":        "string",
			"enum":        EntryTypes,
			"description": "Type of the BibTeX entry",
		},
		"citation_key": str("Citation key, kept unchanged from the original entry"),
		"author":       str("Authors in BibTeX format: 'Last, First and Last2, First2', full names"),
		"title":        str("Exact official title of the work, preserving capitalization"),
		"year":         str("Publication year, four digits"),
		"journal":      opt("Full journal name for articles, not abbreviated"),
		"booktitle":    opt("Full conference proceedings name for inproceedings"),
		"volume":       opt("Volume number"),
		"number":       opt("Issue number"),
		"pages":        opt("Page range using en-dash format, e.g. 123--145"),
		"publisher":    opt("Publisher name"),
		"address":      opt("Publisher location"),
		"series":       opt("Series name"),
		"edition":      opt("Edition number"),
		"chapter":      opt("Chapter number"),
		"note":         opt("Additional notes"),
		"organization": opt("Sponsoring organization"),
		"school":       opt("School name for theses"),
		"institution":  opt("Institution name for technical reports"),
	}
	required := []string{
		"entry_type", "citation_key", "author", "title", "year",
		"journal", "booktitle", "volume", "number", "pages",
		"publisher", "address", "series", "edition", "chapter",
		"note", "organization", "school", "institution",
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
