package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bibfixer/src/cmd/bibfix/cachecmd"
	"bibfixer/src/cmd/bibfix/checkcmd"
	"bibfixer/src/cmd/bibfix/fixcmd"
	"bibfixer/src/cmd/bibfix/fmtcmd"
)

var rootCmd = &cobra.Command{
	Use:   "bibfix",
	Short: "Fix and standardize BibTeX entries using a model with web search",
}

func execute() error {
	rootCmd.AddCommand(fixcmd.New())
	rootCmd.AddCommand(fmtcmd.New())
	rootCmd.AddCommand(checkcmd.New())
	rootCmd.AddCommand(cachecmd.New())
	return rootCmd.Execute()
}

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
