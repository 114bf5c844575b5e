package llmcorrect_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/phonospell/internal/spelling/guard"
	"github.com/MrWong99/phonospell/internal/spelling/llmcorrect"
)

func TestParseChanges(t *testing.T) {
	t.Parallel()

	g := guard.Default()
	tests := []struct {
		name string
		raw  string
		want []llmcorrect.Candidate
	}{
		{
			name: "prose around the marker",
			raw:  "Sure! CHANGES: enuff->enough, fud->food\nThanks.",
			want: []llmcorrect.Candidate{{Original: "enuff", Corrected: "enough"}, {Original: "fud", Corrected: "food"}},
		},
		{
			name: "no marker",
			raw:  "The sentence looks fine to me.",
			want: nil,
		},
		{
			name: "none",
			raw:  "CHANGES: none",
			want: nil,
		},
		{
			name: "none with padding and case",
			raw:  "  changes:   NONE  \n",
			want: nil,
		},
		{
			name: "empty payload",
			raw:  "CHANGES:",
			want: nil,
		},
		{
			name: "lower-case marker",
			raw:  "changes: platem->platinum",
			want: []llmcorrect.Candidate{{Original: "platem", Corrected: "platinum"}},
		},
		{
			name: "first marker line wins",
			raw:  "CHANGES: fud->food\nCHANGES: enuff->enough",
			want: []llmcorrect.Candidate{{Original: "fud", Corrected: "food"}},
		},
		{
			name: "marker after blank lines",
			raw:  "\n\nHere you go:\n\nCHANGES: sed->said\n",
			want: []llmcorrect.Candidate{{Original: "sed", Corrected: "said"}},
		},
		{
			name: "quotes and punctuation stripped",
			raw:  `CHANGES: "enuff"->"enough", 'fud' -> 'food'.`,
			want: []llmcorrect.Candidate{{Original: "enuff", Corrected: "enough"}, {Original: "fud", Corrected: "food"}},
		},
		{
			name: "token without arrow skipped",
			raw:  "CHANGES: enuff=enough, fud->food",
			want: []llmcorrect.Candidate{{Original: "fud", Corrected: "food"}},
		},
		{
			name: "chained arrows rejected",
			raw:  "CHANGES: a->b->c, fud->food",
			want: []llmcorrect.Candidate{{Original: "fud", Corrected: "food"}},
		},
		{
			name: "empty side rejected",
			raw:  "CHANGES: ->enough, fud->, ?!->food",
			want: nil,
		},
		{
			name: "case-insensitive self mapping dropped",
			raw:  "CHANGES: Food->food, enuff->enough",
			want: []llmcorrect.Candidate{{Original: "enuff", Corrected: "enough"}},
		},
		{
			name: "duplicates kept in order",
			raw:  "CHANGES: fud->food, fud->feud",
			want: []llmcorrect.Candidate{{Original: "fud", Corrected: "food"}, {Original: "fud", Corrected: "feud"}},
		},
		{
			name: "CRLF line endings",
			raw:  "CHANGES: enuff->enough\r\nthanks",
			want: []llmcorrect.Candidate{{Original: "enuff", Corrected: "enough"}},
		},
		{
			name: "empty reply",
			raw:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := llmcorrect.ParseChanges(tt.raw, g)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseChanges(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestParseChanges_GuardVeto(t *testing.T) {
	t.Parallel()

	got := llmcorrect.ParseChanges("CHANGES: the->teh", guard.Default())
	if len(got) != 0 {
		t.Fatalf("expected guard veto to drop the pair, got %v", got)
	}
}

func TestParse_ReportsVetoed(t *testing.T) {
	t.Parallel()

	p := llmcorrect.Parse("CHANGES: The->Teh, enuff->enough, is->iz", guard.Default())
	wantAccepted := []llmcorrect.Candidate{{Original: "enuff", Corrected: "enough"}}
	wantVetoed := []llmcorrect.Candidate{{Original: "The", Corrected: "Teh"}, {Original: "is", Corrected: "iz"}}
	if diff := cmp.Diff(wantAccepted, p.Candidates); diff != "" {
		t.Errorf("Candidates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantVetoed, p.Vetoed); diff != "" {
		t.Errorf("Vetoed mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChanges_NilGuard(t *testing.T) {
	t.Parallel()

	got := llmcorrect.ParseChanges("CHANGES: the->teh", nil)
	want := []llmcorrect.Candidate{{Original: "the", Corrected: "teh"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
