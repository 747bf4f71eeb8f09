// Package extract pulls structured fields out of uploaded mortgage
// documents. Two implementations exist: a cloud vision extractor and a
// local text heuristic fallback. Exactly one is selected at startup and
// used for the life of the process.
package extract

import (
	"context"
	"fmt"

	"github.com/lendfast/mortgage-intake/internal/models"
)

// DefaultMaxFileSize is the upload ceiling applied before any extraction
// work starts.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Input is a single document handed to an extractor.
type Input struct {
	Filename     string
	DeclaredType string
	Data         []byte
}

// Extractor turns document bytes into structured fields.
type Extractor interface {
	Extract(ctx context.Context, in Input) (*models.ExtractionResult, error)
	Method() string
}

// CheckSize rejects oversized uploads before any pages are rendered.
func CheckSize(in Input, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}
	if int64(len(in.Data)) > maxBytes {
		return &models.ExtractionError{
			Filename: in.Filename,
			Reason:   fmt.Sprintf("file size %d bytes exceeds limit of %d bytes", len(in.Data), maxBytes),
		}
	}
	if len(in.Data) == 0 {
		return &models.ExtractionError{
			Filename: in.Filename,
			Reason:   "file is empty",
		}
	}
	return nil
}
