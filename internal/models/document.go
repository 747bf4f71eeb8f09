package models

import "time"

// Application represents one mortgage application and its uploaded documents.
type Application struct {
	ID            string    `json:"id"`
	BorrowerName  string    `json:"borrower_name"`
	BorrowerEmail string    `json:"borrower_email"`
	BorrowerPhone string    `json:"borrower_phone"`
	LoanAmount    float64   `json:"loan_amount"`
	Status        string    `json:"status"` // created, documents_pending, processing, reviewed, closed
	DocumentIDs   []string  `json:"document_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Document represents a single uploaded file belonging to an Application.
// A Document is owned exclusively by its Application and is never shared.
type Document struct {
	ID             string            `json:"id"`
	ApplicationID  string            `json:"application_id"`
	DeclaredType   string            `json:"declared_type"`
	Filename       string            `json:"filename"`
	StorageLocator string            `json:"storage_locator"`
	ContentHash    string            `json:"content_hash"` // SHA-256 of the raw bytes
	SizeBytes      int64             `json:"size_bytes"`
	UploadedAt     time.Time         `json:"uploaded_at"`
	Status         string            `json:"status"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Extraction     *ExtractionResult `json:"extraction,omitempty"`
	Validation     *ValidationResult `json:"validation,omitempty"`
	Analysis       *AnalysisResult   `json:"analysis,omitempty"`
}

// ExtractionResult holds the structured fields and raw text pulled out of a
// document. Immutable once produced.
type ExtractionResult struct {
	Fields     map[string]string `json:"fields"`
	RawText    string            `json:"raw_text"`
	Method     string            `json:"method"` // cloud or fallback
	Confidence float64           `json:"confidence"`
}

// ValidationResult is the outcome of applying the document type registry
// rules to an extraction. A failed validation is a value, not an error.
type ValidationResult struct {
	Valid           bool     `json:"valid"`
	Reasons         []string `json:"reasons,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	MissingFields   []string `json:"missing_fields,omitempty"`
	RecencyOK       bool     `json:"recency_ok"`
	CompletenessOK  bool     `json:"completeness_ok"`
	FormatOK        bool     `json:"format_ok"`
	Score           float64  `json:"score"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// AnalysisResult holds the AI assessment of a document.
type AnalysisResult struct {
	Summary         string   `json:"summary"`
	RiskScore       float64  `json:"risk_score"` // 0.0 (clean) to 1.0 (high risk)
	RiskLevel       string   `json:"risk_level"` // low, medium, high
	FraudIndicators []string `json:"fraud_indicators,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Method          string   `json:"method"` // cloud or fallback
}

// Document processing statuses. Transitions are strictly monotonic:
// uploaded -> extracting -> validating -> analyzing -> done, with failed
// reachable from any non-terminal stage. done and failed are terminal.
const (
	DocStatusUploaded   = "uploaded"
	DocStatusExtracting = "extracting"
	DocStatusValidating = "validating"
	DocStatusAnalyzing  = "analyzing"
	DocStatusDone       = "done"
	DocStatusFailed     = "failed"
)

// Application statuses.
const (
	AppStatusCreated          = "created"
	AppStatusDocumentsPending = "documents_pending"
	AppStatusProcessing       = "processing"
	AppStatusReviewed         = "reviewed"
	AppStatusClosed           = "closed"
)

// Extraction/analysis method markers.
const (
	MethodCloud    = "cloud"
	MethodFallback = "fallback"
)

// Risk levels reported by the analyzer.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

var docStatusRank = map[string]int{
	DocStatusUploaded:   0,
	DocStatusExtracting: 1,
	DocStatusValidating: 2,
	DocStatusAnalyzing:  3,
	DocStatusDone:       4,
	DocStatusFailed:     4,
}

// IsTerminalDocStatus reports whether a document status admits no further
// transitions.
func IsTerminalDocStatus(status string) bool {
	return status == DocStatusDone || status == DocStatusFailed
}

// ValidDocTransition reports whether moving from one document status to
// another preserves monotonicity. Terminal statuses never transition.
func ValidDocTransition(from, to string) bool {
	if IsTerminalDocStatus(from) {
		return false
	}
	fromRank, ok := docStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := docStatusRank[to]
	if !ok {
		return false
	}
	if to == DocStatusFailed {
		return true
	}
	return toRank == fromRank+1
}
