// Package fixcmd implements "bibfix fix": the revision pipeline that sends
// each entry to a model and writes back the corrected text.
package fixcmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bibfixer/src/internal/agent"
	"bibfixer/src/internal/bibtex"
	"bibfixer/src/internal/cache"
	"bibfixer/src/internal/config"
	"bibfixer/src/internal/doi"
	"bibfixer/src/internal/logging"
	"bibfixer/src/internal/prompts"
)

// newReviser is split out so tests can fake the provider.
var newReviser = agent.New

// New returns the fix command.
func New() *cobra.Command {
	var (
		cfgPath    string
		provider   string
		model      string
		prefs      string
		promptFile string
		output     string
		cacheDir   string
		structured bool
		inPlace    bool
		noCache    bool
		verifyDOI  bool
		verbose    bool
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fix [file]",
		Short: "Correct and complete BibTeX entries (file or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(verbose)
			defer func() { _ = log.Sync() }()

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Provider = strings.ToLower(provider)
				if model == "" {
					cfg.Model = config.DefaultModel(cfg.Provider)
				}
			}
			if model != "" {
				cfg.Model = model
			}
			if prefs != "" {
				cfg.Preferences = prefs
			}
			if promptFile != "" {
				cfg.PromptFile = promptFile
			}
			if cmd.Flags().Changed("structured") {
				cfg.Structured = structured
			}
			if timeout > 0 {
				cfg.Timeout = timeout
			}
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}

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

			instructions, err := prompts.Load(cfg.PromptFile)
			if err != nil {
				return err
			}
			apiKey, err := cfg.ResolveAPIKey()
			if err != nil {
				return err
			}
			rev, err := newReviser(cmd.Context(), agent.Options{
				Provider:     cfg.Provider,
				Model:        cfg.Model,
				APIKey:       apiKey,
				BaseURL:      cfg.ResolveBaseURL(),
				Referer:      cfg.Referer,
				SiteTitle:    cfg.SiteTitle,
				Instructions: instructions,
				Structured:   cfg.Structured,
				Logger:       log,
			})
			if err != nil {
				return err
			}

			var store *cache.Cache
			if !noCache {
				store, err = cache.Open(cfg.CacheDir)
				if err != nil {
					log.Warn("revision cache unavailable", zap.Error(err))
					store = nil
				} else {
					defer store.Close()
				}
			}

			revised, err := reviseAll(cmd, cfg, rev, store, recs, log, verifyDOI)
			if err != nil {
				return err
			}
			return writeOutput(cmd, args, revised, output, inPlace)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file (default ~/.config/bibfix/config.yaml)")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider: openai, openrouter, or gemini")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to use (default depends on provider)")
	cmd.Flags().StringVarP(&prefs, "prefs", "p", "", "formatting preferences, e.g. 'sentence case titles'")
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "instruction template overriding the built-in one")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write revised entries to this file")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "revision cache directory")
	cmd.Flags().BoolVar(&structured, "structured", false, "request schema-constrained output (openai/openrouter)")
	cmd.Flags().BoolVarP(&inPlace, "in-place", "w", false, "rewrite the input file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the revision cache")
	cmd.Flags().BoolVar(&verifyDOI, "verify-doi", false, "cross-check returned DOIs against doi.org")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging to stderr")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-entry request timeout")
	return cmd
}

func reviseAll(cmd *cobra.Command, cfg config.Config, rev agent.Reviser, store *cache.Cache, recs []bibtex.Record, log *zap.Logger, verifyDOI bool) ([]string, error) {
	out := make([]string, 0, len(recs))
	for i, r := range recs {
		fmt.Fprintf(cmd.ErrOrStderr(), "entry %d/%d: %s\n", i+1, len(recs), r.Key)
		entryText := bibtex.Render(r)
		key := cache.Key(entryText, cfg.Preferences, cfg.Model)
		if store != nil {
			if v, ok, err := store.Get(cmd.Context(), key); err == nil && ok {
				log.Debug("cache hit", zap.String("entry", r.Key))
				out = append(out, strings.TrimSpace(v))
				continue
			} else if err != nil {
				log.Warn("cache read failed", zap.Error(err))
			}
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
		revised, err := rev.Revise(ctx, entryText, agent.HintsFor(r), cfg.Preferences)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", r.Key, err)
		}
		revised = strings.TrimSpace(revised)
		if verifyDOI {
			checkDOI(cmd, revised, log)
		}
		if store != nil {
			if err := store.Put(cmd.Context(), key, cfg.Model, revised); err != nil {
				log.Warn("cache write failed", zap.Error(err))
			}
		}
		out = append(out, revised)
	}
	return out, nil
}

// checkDOI flags a revised entry whose DOI does not resolve to its title.
// Verification failures are advisory: the entry is still written out.
func checkDOI(cmd *cobra.Command, revised string, log *zap.Logger) {
	recs, err := bibtex.Parse(revised)
	if err != nil || len(recs) == 0 {
		return
	}
	d := doi.Extract(recs[0].Fields["doi"])
	if d == "" {
		return
	}
	if err := doi.Verify(cmd.Context(), d, recs[0].Title()); err != nil {
		log.Warn("doi verification failed", zap.String("entry", recs[0].Key), zap.Error(err))
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", recs[0].Key, err)
	}
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

func writeOutput(cmd *cobra.Command, args []string, revised []string, output string, inPlace bool) error {
	combined := strings.Join(revised, "\n\n") + "\n"
	switch {
	case inPlace:
		return os.WriteFile(args[0], []byte(combined), 0o644)
	case output != "":
		return os.WriteFile(output, []byte(combined), 0o644)
	default:
		_, err := fmt.Fprint(cmd.OutOrStdout(), combined)
		return err
	}
}
