package infra

import (
	"fmt"
	"log"
	"sync"
)

// DiagKind classifies a recovered data-quality problem.
type DiagKind string

const (
	DiagDecode    DiagKind = "decode"     // malformed payload, fields dropped
	DiagAmbiguity DiagKind = "ambiguity"  // overlapping directory validity windows
	DiagBadRow    DiagKind = "bad_row"    // unusable source row, skipped
)

// Diagnostic records one recovered problem. Recovered problems never
// abort a run; they are surfaced here and mirrored to the log.
type Diagnostic struct {
	Kind    DiagKind `json:"kind"`
	Subject string   `json:"subject"` // entity ID, code, or table involved
	Detail  string   `json:"detail"`
}

// Recorder collects diagnostics for one run. Safe for concurrent use.
// A nil Recorder discards everything, so callers never need to guard.
type Recorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// NewRecorder creates an empty diagnostics recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Record adds a diagnostic and mirrors it to the process log.
func (r *Recorder) Record(kind DiagKind, subject, format string, args ...any) {
	detail := fmt.Sprintf(format, args...)
	log.Printf("diag [%s] %s: %s", kind, subject, detail)
	if r == nil {
		return
	}
	r.mu.Lock()
	r.diags = append(r.diags, Diagnostic{Kind: kind, Subject: subject, Detail: detail})
	r.mu.Unlock()
}

// All returns a copy of the recorded diagnostics.
func (r *Recorder) All() []Diagnostic {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Count returns the number of recorded diagnostics.
func (r *Recorder) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.diags)
}
