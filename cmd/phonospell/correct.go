package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling"
)

var (
	correctJSON    bool
	correctVerbose bool
)

var correctCmd = &cobra.Command{
	Use:   "correct [sentence...]",
	Short: "Correct a sentence, or every line of stdin",
	Long: `Correct a sentence given as arguments, or every non-empty line read
from stdin when no arguments are given.

Examples:
  phonospell correct I have enuff fud
  phonospell correct --json "wen can we go"
  cat notes.txt | phonospell correct`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, observe.DefaultMetrics(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		var sentences []string
		if len(args) > 0 {
			sentences = []string{strings.Join(args, " ")}
		} else {
			sentences, err = readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
		}
		if len(sentences) == 0 {
			return fmt.Errorf("nothing to correct: pass a sentence or pipe text on stdin")
		}

		results, err := a.corrector.CorrectAll(ctx, sentences, cfg.Server.BatchParallelism)
		if err != nil {
			slog.Error("correction failed", "err", err)
			return err
		}
		return printResults(cmd.OutOrStdout(), results, correctJSON, correctVerbose)
	},
}

func init() {
	correctCmd.Flags().BoolVar(&correctJSON, "json", false, "print one JSON report per sentence")
	correctCmd.Flags().BoolVarP(&correctVerbose, "verbose", "v", false, "list every correction under the sentence")
}

// readLines returns the non-blank lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return lines, nil
}

func printResults(w io.Writer, results []*spelling.Result, asJSON, verbose bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, res := range results {
			if err := enc.Encode(res.Report()); err != nil {
				return err
			}
		}
		return nil
	}

	for _, res := range results {
		fmt.Fprintln(w, res.Corrected)
		if !verbose {
			continue
		}
		for _, c := range res.Corrections {
			fmt.Fprintf(w, "  %s -> %s (%s)\n", c.Original, c.Corrected, c.Source)
		}
		if res.ModelErr != nil {
			fmt.Fprintf(w, "  model unavailable: %v\n", res.ModelErr)
		}
	}
	return nil
}
