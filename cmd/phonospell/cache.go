package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonospell/internal/config"
	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling/cache"
)

var (
	cacheListJSON bool
	cachePruneDry bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the learned correction cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned corrections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, closeFn, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		entries := c.Entries()
		out := cmd.OutOrStdout()
		if cacheListJSON {
			return json.NewEncoder(out).Encode(entries)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WORD\tCORRECTION")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\n", e.Word, e.Correction)
		}
		return tw.Flush()
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <word>...",
	Short: "Forget the corrections learned for the given words",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		for _, w := range args {
			if _, ok := c.Get(w); !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: not cached\n", w)
				continue
			}
			if err := c.Delete(cmd.Context(), w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", cache.Key(w))
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every learned correction",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, closeFn, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		n := c.Len()
		if err := c.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d corrections\n", n)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop entries the current guard would veto",
	Long: `Drop cache entries whose misspelling is now a protected word, or whose
correction is blank or only differs in case. Such entries are never applied,
so removing them only shrinks the cache.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, closeFn, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		g, err := config.BuildGuard(cfg.Guard)
		if err != nil {
			return err
		}
		drop := func(word, correction string) bool {
			return g.IsProtected(word) ||
				strings.TrimSpace(correction) == "" ||
				strings.EqualFold(word, correction)
		}

		if cachePruneDry {
			for _, e := range c.Entries() {
				if drop(e.Word, e.Correction) {
					fmt.Fprintf(cmd.OutOrStdout(), "would drop %s -> %s\n", e.Word, e.Correction)
				}
			}
			return nil
		}
		n, err := c.Prune(cmd.Context(), drop)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d corrections\n", n)
		return nil
	},
}

func init() {
	cacheListCmd.Flags().BoolVar(&cacheListJSON, "json", false, "print entries as JSON")
	cachePruneCmd.Flags().BoolVar(&cachePruneDry, "dry-run", false, "only print what would be dropped")
	cacheCmd.AddCommand(cacheListCmd, cacheDeleteCmd, cacheClearCmd, cachePruneCmd)
}

// openCache opens the configured cache without model backends or auditing.
func openCache(cmd *cobra.Command) (*cache.Cache, func(), error) {
	a, err := newApp(cmd.Context(), cfg, observe.DefaultMetrics(), appOptions{noModel: true, noAudit: true})
	if err != nil {
		return nil, nil, err
	}
	return a.corrector.Cache(), a.Close, nil
}
