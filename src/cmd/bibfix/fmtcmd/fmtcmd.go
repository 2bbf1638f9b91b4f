// Package fmtcmd implements "bibfix fmt": deterministic re-rendering of
// BibTeX entries into the canonical field order, with no model calls.
package fmtcmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"bibfixer/src/internal/bibtex"
)

// New returns the fmt command.
func New() *cobra.Command {
	var (
		output  string
		inPlace bool
	)
	cmd := &cobra.Command{
		Use:   "fmt [file]",
		Short: "Re-render BibTeX entries in canonical field order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPlace && len(args) == 0 {
				return fmt.Errorf("-w requires a file argument")
			}
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
			combined := bibtex.RenderAll(recs)
			switch {
			case inPlace:
				return os.WriteFile(args[0], []byte(combined), 0o644)
			case output != "":
				return os.WriteFile(output, []byte(combined), 0o644)
			default:
				_, err := fmt.Fprint(cmd.OutOrStdout(), combined)
				return err
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write formatted entries to this file")
	cmd.Flags().BoolVarP(&inPlace, "in-place", "w", false, "rewrite the input file")
	return cmd
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
