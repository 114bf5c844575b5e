// Package audit keeps an append-only trail of every corrected sentence.
//
// Records are stored as JSON lines in a local file, one per call to
// [spelling.Corrector.Correct]. The trail is meant for whoever is
// reviewing what was changed, and serves as raw material for growing the guard
// allowlist when the model keeps rewriting a word that was right.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/phonospell/internal/spelling"
)

// Compile-time interface check.
var _ spelling.Recorder = (*FileLog)(nil)

// Record is a single audit entry written to the log.
type Record struct {
	ID          string                `json:"id"`
	Timestamp   time.Time             `json:"timestamp"`
	Input       string                `json:"input"`
	Output      string                `json:"output"`
	Corrections []spelling.Correction `json:"corrections"`
	ModelCalled bool                  `json:"model_called"`
	Skipped     string                `json:"skipped,omitempty"`
	ModelError  string                `json:"model_error,omitempty"`
	ElapsedMS   float64               `json:"elapsed_ms"`
}

// NewRecord converts a pipeline result into an audit record with a fresh ID.
func NewRecord(res *spelling.Result) Record {
	rec := Record{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Input:       res.Input,
		Output:      res.Corrected,
		Corrections: res.Corrections,
		ModelCalled: res.ModelCalled,
		Skipped:     string(res.Skipped),
		ElapsedMS:   float64(res.Elapsed.Microseconds()) / 1000,
	}
	if res.ModelErr != nil {
		rec.ModelError = res.ModelErr.Error()
	}
	return rec
}

// FileLog persists audit records as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog creates a FileLog that writes to path. The file and its parent
// directory are created on the first write.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Path returns the file the log appends to.
func (l *FileLog) Path() string { return l.path }

// Record appends res to the log. A write failure is logged and otherwise
// ignored; auditing never fails a correction.
func (l *FileLog) Record(ctx context.Context, res *spelling.Result) {
	if res == nil {
		return
	}
	if err := l.Append(NewRecord(res)); err != nil {
		slog.WarnContext(ctx, "audit: failed to record result", "path", l.path, "err", err)
	}
}

// Append writes rec as one line.
func (l *FileLog) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("audit: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return nil
}

// ReadAll returns every record in the log, oldest first. A missing file
// yields no records. Reading stops at the first line that does not decode.
func (l *FileLog) ReadAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	defer f.Close()

	var out []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			slog.Warn("audit: stopping at undecodable record", "path", l.path, "err", err)
			break
		}
		out = append(out, rec)
	}
	return out, nil
}
