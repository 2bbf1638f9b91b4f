// Package cachecmd implements "bibfix cache": inspect and clear the
// revision cache.
package cachecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bibfixer/src/internal/cache"
	"bibfixer/src/internal/config"
)

// New returns the cache command with its stats and clear subcommands.
func New() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the revision cache",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "cache directory (default per-user cache dir)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cached revision counts and timestamps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(dir)
			if err != nil {
				return err
			}
			defer c.Close()
			s, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\n", s.Entries)
			if s.Entries > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "oldest:  %s\n", s.Oldest)
				fmt.Fprintf(cmd.OutOrStdout(), "newest:  %s\n", s.Newest)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all cached revisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(dir)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})
	return cmd
}

func open(dir string) (*cache.Cache, error) {
	if dir == "" {
		dir = config.DefaultCacheDir()
	}
	return cache.Open(dir)
}
