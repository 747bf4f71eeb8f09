package models

import "time"

// Batch report flags.
const (
	BatchFlagSuccess = "success"
	BatchFlagPartial = "partial"
)

// DocumentEntry is the per-document slice of a BatchReport. Exactly one
// worker writes each entry, keyed by document ID.
type DocumentEntry struct {
	DocumentID   string            `json:"document_id"`
	DeclaredType string            `json:"declared_type"`
	Filename     string            `json:"filename"`
	Status       string            `json:"status"` // done or failed
	Error        string            `json:"error,omitempty"`
	Extraction   *ExtractionResult `json:"extraction,omitempty"`
	Validation   *ValidationResult `json:"validation,omitempty"`
	Analysis     *AnalysisResult   `json:"analysis,omitempty"`
}

// CompletenessSummary reports which required document types the application
// is still missing after a batch.
type CompletenessSummary struct {
	Complete        bool     `json:"complete"`
	MissingRequired []string `json:"missing_required,omitempty"`
	Score           float64  `json:"score"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// BatchReport aggregates the outcome of one batch submission. It is complete
// only once every referenced document has reached a terminal status.
type BatchReport struct {
	ApplicationID string                    `json:"application_id"`
	Entries       map[string]*DocumentEntry `json:"entries"`
	Flag          string                    `json:"flag"` // success or partial
	Completeness  CompletenessSummary       `json:"completeness"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    time.Time                 `json:"finished_at"`
}

// Duration returns how long the batch took to process.
func (r *BatchReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// DoneCount returns the number of documents that reached done.
func (r *BatchReport) DoneCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == DocStatusDone {
			n++
		}
	}
	return n
}

// FailedCount returns the number of documents that reached failed.
func (r *BatchReport) FailedCount() int {
	return len(r.Entries) - r.DoneCount()
}
