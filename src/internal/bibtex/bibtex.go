// Package bibtex parses and renders BibTeX records. The parser is
// deliberately small: it understands @type{key, field = {value}} records with
// brace- or quote-delimited values and % line comments, which covers the
// citation files this tool is asked to clean up.
package bibtex

import (
	"fmt"
	"sort"
	"strings"
)

// Record is a single BibTeX entry.
type Record struct {
	Type   string
	Key    string
	Fields map[string]string
}

// fieldOrder is the canonical field sequence used when rendering. Fields not
// listed here are appended afterwards in alphabetical order.
var fieldOrder = []string{
	"author",
	"title",
	"journal",
	"booktitle",
	"year",
	"volume",
	"number",
	"pages",
	"publisher",
	"address",
	"series",
	"edition",
	"chapter",
	"note",
	"organization",
	"school",
	"institution",
}

// Parse reads every record in s. A syntactically broken record aborts the
// whole parse so callers never operate on a partial view of the file.
func Parse(s string) ([]Record, error) {
	i := 0
	n := len(s)
	var recs []Record
	skipWS := func() {
		for i < n {
			if s[i] == '%' {
				for i < n && s[i] != '\n' {
					i++
				}
				continue
			}
			if strings.IndexByte(" \t\r\n", s[i]) >= 0 {
				i++
			} else {
				break
			}
		}
	}
	for {
		skipWS()
		if i >= n {
			break
		}
		if s[i] != '@' {
			i++
			continue
		}
		i++
		skipWS()
		start := i
		for i < n && isAlpha(s[i]) {
			i++
		}
		typ := strings.ToLower(s[start:i])
		if typ == "" {
			return nil, fmt.Errorf("bibtex: missing entry type after '@'")
		}
		skipWS()
		if i >= n || (s[i] != '{' && s[i] != '(') {
			return nil, fmt.Errorf("bibtex: expected '{' after @%s", typ)
		}
		i++
		skipWS()
		start = i
		for i < n && s[i] != ',' && s[i] != '}' && s[i] != ')' {
			i++
		}
		if i >= n {
			return nil, fmt.Errorf("bibtex: unterminated @%s record", typ)
		}
		key := strings.TrimSpace(s[start:i])
		if key == "" {
			return nil, fmt.Errorf("bibtex: @%s record has no citation key", typ)
		}
		fields := map[string]string{}
		if s[i] == ',' {
			i++
			var err error
			fields, err = parseFields(s, &i, key)
			if err != nil {
				return nil, err
			}
		} else {
			i++ // record closed immediately after the key
		}
		recs = append(recs, Record{Type: typ, Key: key, Fields: fields})
	}
	return recs, nil
}

func parseFields(s string, pos *int, key string) (map[string]string, error) {
	i := *pos
	n := len(s)
	fields := map[string]string{}
	defer func() { *pos = i }()
	skipWS := func() {
		for i < n && strings.IndexByte(" \t\r\n", s[i]) >= 0 {
			i++
		}
	}
	for {
		skipWS()
		if i >= n {
			return nil, fmt.Errorf("bibtex: unexpected end of input in %q", key)
		}
		if s[i] == '}' || s[i] == ')' {
			i++
			return fields, nil
		}
		fstart := i
		for i < n && (isAlpha(s[i]) || isDigit(s[i]) || s[i] == '_' || s[i] == '-') {
			i++
		}
		name := strings.ToLower(strings.TrimSpace(s[fstart:i]))
		if name == "" {
			return nil, fmt.Errorf("bibtex: empty field name in %q", key)
		}
		skipWS()
		if i >= n || s[i] != '=' {
			return nil, fmt.Errorf("bibtex: expected '=' after field %q in %q", name, key)
		}
		i++
		skipWS()
		val, err := parseValue(s, &i, key, name)
		if err != nil {
			return nil, err
		}
		fields[name] = normalizeValue(val)
		skipWS()
		if i < n && s[i] == ',' {
			i++
			continue
		}
		if i < n && (s[i] == '}' || s[i] == ')') {
			i++
			return fields, nil
		}
	}
}

func parseValue(s string, pos *int, key, name string) (string, error) {
	i := *pos
	n := len(s)
	defer func() { *pos = i }()
	if i < n && s[i] == '{' {
		depth := 0
		i++
		vstart := i
		for i < n {
			switch s[i] {
			case '\\':
				i += 2
			case '{':
				depth++
				i++
			case '}':
				if depth == 0 {
					v := s[vstart:i]
					i++
					return v, nil
				}
				depth--
				i++
			default:
				i++
			}
		}
		return "", fmt.Errorf("bibtex: unbalanced braces in field %q of %q", name, key)
	}
	if i < n && s[i] == '"' {
		i++
		vstart := i
		for i < n {
			if s[i] == '\\' {
				i += 2
				continue
			}
			if s[i] == '"' {
				v := s[vstart:i]
				i++
				return v, nil
			}
			i++
		}
		return "", fmt.Errorf("bibtex: unterminated quoted value in field %q of %q", name, key)
	}
	// bare value (numbers, macros) up to delimiter
	vstart := i
	for i < n && s[i] != ',' && s[i] != '}' && s[i] != ')' && s[i] != '\n' {
		i++
	}
	return strings.TrimSpace(s[vstart:i]), nil
}

// Render produces a canonical textual form of the record: two-space indent,
// fields in canonical order, values brace-delimited, no trailing comma.
// Braces inside values are preserved so title capitalization survives.
func Render(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s,\n", strings.ToLower(strings.TrimSpace(r.Type)), r.Key)
	seen := map[string]bool{}
	write := func(k, v string) {
		if strings.TrimSpace(v) == "" {
			return
		}
		fmt.Fprintf(&b, "  %s = {%s},\n", k, normalizeValue(v))
	}
	for _, k := range fieldOrder {
		if v, ok := r.Fields[k]; ok {
			write(k, v)
			seen[k] = true
		}
	}
	extras := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if !seen[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		write(k, r.Fields[k])
	}
	out := strings.TrimRight(b.String(), "\n")
	out = strings.TrimRight(out, ",")
	return out + "\n}\n"
}

// RenderAll renders records separated by blank lines.
func RenderAll(rs []Record) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, Render(r))
	}
	return strings.Join(parts, "\n")
}

// Title returns the entry title with outer capitalization braces stripped,
// suitable for use as a search hint.
func (r Record) Title() string {
	t := strings.TrimSpace(r.Fields["title"])
	for strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") && len(t) >= 2 {
		inner := strings.TrimSpace(t[1 : len(t)-1])
		if !balanced(inner) {
			break
		}
		t = inner
	}
	return t
}

// FirstAuthor returns the first author from the author field. BibTeX joins
// authors with " and "; a lone "Family, Given" name is returned whole.
func (r Record) FirstAuthor() string {
	a := strings.TrimSpace(r.Fields["author"])
	if a == "" {
		return ""
	}
	if i := strings.Index(a, " and "); i >= 0 {
		return strings.TrimSpace(a[:i])
	}
	return a
}

// normalizeValue flattens whitespace runs so rendered fields stay on one line.
func normalizeValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

func balanced(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func isAlpha(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }
