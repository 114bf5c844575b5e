package spelling

// Report is the wire form of a [Result], shared by the HTTP API, live
// sessions, the MCP tool and the CLI's JSON output.
type Report struct {
	Input       string       `json:"input"`
	Corrected   string       `json:"corrected"`
	Corrections []Correction `json:"corrections"`
	ElapsedMS   float64      `json:"elapsed_ms"`
	ModelCalled bool         `json:"model_called"`
	Skipped     SkipReason   `json:"skipped,omitempty"`
	ModelError  string       `json:"model_error,omitempty"`
}

// Report converts r to its wire form.
func (r *Result) Report() Report {
	rep := Report{
		Input:       r.Input,
		Corrected:   r.Corrected,
		Corrections: r.Corrections,
		ElapsedMS:   float64(r.Elapsed.Microseconds()) / 1000,
		ModelCalled: r.ModelCalled,
		Skipped:     r.Skipped,
	}
	if rep.Corrections == nil {
		rep.Corrections = []Correction{}
	}
	if r.ModelErr != nil {
		rep.ModelError = r.ModelErr.Error()
	}
	return rep
}
