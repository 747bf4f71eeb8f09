package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReportNotFound is returned by the persistence gateway when no report
// exists for an application.
var ErrReportNotFound = errors.New("batch report not found")

// ExtractionError indicates a document could not be read at all: corrupt
// bytes, an unsupported container, or a file over the size limit. Low
// extraction confidence is not an error.
type ExtractionError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %s: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.Filename, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationFailureError records a failing validation verdict. It carries
// the violated-rule reasons so the report entry names exactly what to fix.
type ValidationFailureError struct {
	Reasons []string
}

func (e *ValidationFailureError) Error() string {
	if len(e.Reasons) == 0 {
		return "ValidationFailure: validation score below threshold"
	}
	return fmt.Sprintf("ValidationFailure: %s", strings.Join(e.Reasons, "; "))
}

// AnalysisError indicates a total analyzer outage with no fallback path.
// With a heuristic fallback always bound this should not occur in practice.
type AnalysisError struct {
	Reason string
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %s: %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// PersistenceError indicates the bound storage tier failed a write or read.
// There is no third tier; callers treat this as fatal for the operation.
type PersistenceError struct {
	Op      string // save, load
	Backend string // elasticsearch, sqlite
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed on %s backend: %v", e.Op, e.Backend, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// BatchCancelledError marks a document whose chain was abandoned because the
// batch context was cancelled before the next stage boundary.
type BatchCancelledError struct {
	DocumentID string
	Stage      string
}

func (e *BatchCancelledError) Error() string {
	return fmt.Sprintf("batch cancelled before %s of document %s", e.Stage, e.DocumentID)
}
