// Package prompts holds the instruction template sent with every revision
// request. A default template is baked into the binary; users can override it
// with their own file.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed default.md
var defaultTemplate string

// Default returns the built-in instruction template.
func Default() string {
	return strings.TrimSpace(defaultTemplate) + "\n"
}

// Load returns the instructions from path, or the built-in template when path
// is empty.
func Load(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return s + "\n", nil
}
