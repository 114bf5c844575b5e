package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling/homophone"
)

var (
	hintJSON bool
	hintWord string
)

var hintCmd = &cobra.Command{
	Use:   "hint [sentence...]",
	Short: "Point out sound-alike words that may be the wrong choice",
	Long: `Check the homophones of a sentence (there/their/they're, to/too/two,
...) and print a hint for every word that looks like the wrong choice. The
corrected sentence is never printed; the hint names the other word and what
it means, followed by a read-aloud script.

Reads every non-empty line of stdin when no sentence is given.

Examples:
  phonospell hint Their going to the store
  phonospell hint --word no "I don't no the answer"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, observe.DefaultMetrics(), appOptions{noAudit: true})
		if err != nil {
			return err
		}
		defer a.Close()
		if a.hinter == nil {
			return errors.New("hint needs a model backend; configure the model section")
		}

		var sentences []string
		if len(args) > 0 {
			sentences = []string{strings.Join(args, " ")}
		} else if sentences, err = readLines(cmd.InOrStdin()); err != nil {
			return err
		}
		if len(sentences) == 0 {
			return fmt.Errorf("nothing to check: pass a sentence or pipe text on stdin")
		}

		out := cmd.OutOrStdout()
		for _, s := range sentences {
			var hints []*homophone.Hint
			if hintWord != "" {
				h, err := a.hinter.Hint(ctx, s, hintWord)
				if err != nil {
					return err
				}
				hints = []*homophone.Hint{h}
			} else if hints, err = a.hinter.Check(ctx, s); err != nil {
				return err
			}
			if err := printHints(out, s, hints, hintJSON); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	hintCmd.Flags().BoolVar(&hintJSON, "json", false, "print one JSON object per sentence")
	hintCmd.Flags().StringVar(&hintWord, "word", "", "check only this word")
}

type hintReport struct {
	Sentence string            `json:"sentence"`
	Hints    []*homophone.Hint `json:"hints"`
}

func printHints(w io.Writer, sentence string, hints []*homophone.Hint, asJSON bool) error {
	if asJSON {
		if hints == nil {
			hints = []*homophone.Hint{}
		}
		return json.NewEncoder(w).Encode(hintReport{Sentence: sentence, Hints: hints})
	}

	fmt.Fprintln(w, sentence)
	if len(hints) == 0 {
		fmt.Fprintln(w, "  no sound-alike words")
		return nil
	}
	for _, h := range hints {
		switch h.Verdict {
		case homophone.VerdictHint:
			fmt.Fprintf(w, "  %s: try %q, %s\n", h.Word, h.Suggestion, h.Meaning)
			fmt.Fprintf(w, "    %s\n", h.SoundOut)
		default:
			fmt.Fprintf(w, "  %s: %s\n", h.Word, h.Verdict)
		}
	}
	return nil
}
