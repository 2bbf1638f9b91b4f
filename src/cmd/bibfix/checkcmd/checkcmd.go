// Package checkcmd implements "bibfix check": validate BibTeX entries
// against the standard entry types and required fields without modifying
// anything. The exit code is non-zero when any entry has problems.
package checkcmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bibfixer/src/internal/bibtex"
	"bibfixer/src/internal/schema"
)

// New returns the check command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate BibTeX entries and report problems",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			recs, err := bibtex.Parse(src)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return fmt.Errorf("no BibTeX entries found")
			}
			problems := 0
			for _, r := range recs {
				for _, p := range checkRecord(r) {
					problems++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", r.Key, p)
				}
			}
			if problems > 0 {
				return fmt.Errorf("%d problem(s) in %d entries", problems, len(recs))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries ok\n", len(recs))
			return nil
		},
	}
	return cmd
}

// checkRecord lists the problems with one entry. The required-field rules
// follow the standard BibTeX entry types.
func checkRecord(r bibtex.Record) []string {
	var problems []string
	if !schema.ValidType(r.Type) {
		problems = append(problems, fmt.Sprintf("unknown entry type %q", r.Type))
	}
	for _, f := range []string{"author", "title", "year"} {
		if strings.TrimSpace(r.Fields[f]) == "" {
			problems = append(problems, "missing "+f)
		}
	}
	if y := strings.TrimSpace(r.Fields["year"]); y != "" && !plausibleYear(y) {
		problems = append(problems, fmt.Sprintf("suspicious year %q", y))
	}
	switch r.Type {
	case "article":
		if strings.TrimSpace(r.Fields["journal"]) == "" {
			problems = append(problems, "missing journal")
		}
	case "inproceedings", "incollection":
		if strings.TrimSpace(r.Fields["booktitle"]) == "" {
			problems = append(problems, "missing booktitle")
		}
	case "phdthesis", "mastersthesis":
		if strings.TrimSpace(r.Fields["school"]) == "" {
			problems = append(problems, "missing school")
		}
	case "techreport":
		if strings.TrimSpace(r.Fields["institution"]) == "" {
			problems = append(problems, "missing institution")
		}
	}
	return problems
}

func plausibleYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
