// Package pipeline runs the extract, validate, analyze chain over a batch
// of uploaded documents with bounded concurrency and per-document fault
// isolation.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/analyze"
	"github.com/lendfast/mortgage-intake/internal/extract"
	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
	"github.com/lendfast/mortgage-intake/internal/validate"
)

// DefaultWorkers is the batch concurrency ceiling when configuration does
// not say otherwise.
const DefaultWorkers = 3

// BatchInput is one document queued for processing, with its raw bytes.
type BatchInput struct {
	Document *models.Document
	Data     []byte
}

// Coordinator drives batches through the three processing stages.
type Coordinator struct {
	extractor      extract.Extractor
	validator      *validate.Validator
	analyzer       analyze.Analyzer
	workers        int
	analyzeInvalid bool
	logger         *zap.Logger
}

// NewCoordinator wires the three stage implementations together. workers
// below 1 falls back to DefaultWorkers.
func NewCoordinator(extractor extract.Extractor, validator *validate.Validator, analyzer analyze.Analyzer, workers int, analyzeInvalid bool, logger *zap.Logger) *Coordinator {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Coordinator{
		extractor:      extractor,
		validator:      validator,
		analyzer:       analyzer,
		workers:        workers,
		analyzeInvalid: analyzeInvalid,
		logger:         logger,
	}
}

// ProcessBatch runs every document through the pipeline and assembles the
// batch report. One document failing never aborts the others: its entry
// records the failure and the batch carries on. The returned report always
// has exactly one entry per input.
func (c *Coordinator) ProcessBatch(ctx context.Context, applicationID string, inputs []BatchInput) *models.BatchReport {
	report := &models.BatchReport{
		ApplicationID: applicationID,
		Entries:       make(map[string]*models.DocumentEntry, len(inputs)),
		StartedAt:     time.Now().UTC(),
	}
	referenceDate := report.StartedAt

	c.logger.Info("Starting document batch",
		zap.String("application_id", applicationID),
		zap.Int("document_count", len(inputs)),
		zap.Int("workers", c.workers))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.workers)

	for _, in := range inputs {
		wg.Add(1)
		go func(in BatchInput) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			entry := c.processDocument(ctx, in, referenceDate)

			mu.Lock()
			report.Entries[in.Document.ID] = entry
			mu.Unlock()
		}(in)
	}
	wg.Wait()

	report.FinishedAt = time.Now().UTC()
	report.Flag = models.BatchFlagSuccess
	if report.FailedCount() > 0 {
		report.Flag = models.BatchFlagPartial
	}
	report.Completeness = c.summarizeCompleteness(report)

	c.logger.Info("Document batch finished",
		zap.String("application_id", applicationID),
		zap.String("flag", report.Flag),
		zap.Int("done", report.DoneCount()),
		zap.Int("failed", report.FailedCount()),
		zap.Duration("duration", report.Duration()))
	return report
}

// processDocument runs one document through the stage chain. Every return
// path leaves the document in a terminal status.
func (c *Coordinator) processDocument(ctx context.Context, in BatchInput, referenceDate time.Time) *models.DocumentEntry {
	doc := in.Document
	entry := &models.DocumentEntry{
		DocumentID:   doc.ID,
		DeclaredType: doc.DeclaredType,
		Filename:     doc.Filename,
	}
	logger := c.logger.With(
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.String("declared_type", doc.DeclaredType))

	fail := func(stage string, err error) *models.DocumentEntry {
		logger.Warn("Document processing failed",
			zap.String("stage", stage),
			zap.Error(err))
		c.transition(doc, models.DocStatusFailed)
		doc.FailureMessage = err.Error()
		entry.Status = doc.Status
		entry.Error = doc.FailureMessage
		return entry
	}

	// Extraction.
	if err := ctx.Err(); err != nil {
		return fail("extract", &models.BatchCancelledError{DocumentID: doc.ID, Stage: "extract"})
	}
	c.transition(doc, models.DocStatusExtracting)
	extraction, err := c.extractor.Extract(ctx, extract.Input{
		Filename:     doc.Filename,
		DeclaredType: doc.DeclaredType,
		Data:         in.Data,
	})
	if err != nil {
		return fail("extract", err)
	}
	doc.Extraction = extraction
	entry.Extraction = extraction

	// Validation. A failing verdict is a result, not an error.
	if err := ctx.Err(); err != nil {
		return fail("validate", &models.BatchCancelledError{DocumentID: doc.ID, Stage: "validate"})
	}
	c.transition(doc, models.DocStatusValidating)
	validation := c.validator.Validate(extraction, doc.DeclaredType, doc.Filename, referenceDate)
	doc.Validation = &validation
	entry.Validation = &validation

	// Analysis. Invalid documents are still analyzed when configured to,
	// so the assessor sees a risk profile alongside the rule violations,
	// but they terminate as failed either way.
	if err := ctx.Err(); err != nil {
		return fail("analyze", &models.BatchCancelledError{DocumentID: doc.ID, Stage: "analyze"})
	}
	c.transition(doc, models.DocStatusAnalyzing)
	if validation.Valid || c.analyzeInvalid {
		analysis, err := c.analyzer.Analyze(ctx, analyze.Input{
			DeclaredType: doc.DeclaredType,
			Filename:     doc.Filename,
			Extraction:   extraction,
			Validation:   &validation,
		})
		if err != nil {
			return fail("analyze", &models.AnalysisError{Reason: "analysis failed", Err: err})
		}
		doc.Analysis = analysis
		entry.Analysis = analysis
	} else {
		logger.Info("Skipping analysis of invalid document")
	}

	if !validation.Valid {
		return fail("validate", &models.ValidationFailureError{Reasons: validation.Reasons})
	}

	c.transition(doc, models.DocStatusDone)
	entry.Status = doc.Status
	logger.Info("Document processed",
		zap.Float64("validation_score", validation.Score))
	return entry
}

// transition advances the document status, enforcing the stage order.
func (c *Coordinator) transition(doc *models.Document, to string) {
	if !models.ValidDocTransition(doc.Status, to) {
		// A rejected transition is a programming error in the stage chain.
		c.logger.Error("Illegal document status transition",
			zap.String("document_id", doc.ID),
			zap.String("from", doc.Status),
			zap.String("to", to))
		return
	}
	doc.Status = to
}

// summarizeCompleteness reports which required document types the batch
// covered with a valid document.
func (c *Coordinator) summarizeCompleteness(report *models.BatchReport) models.CompletenessSummary {
	required := registry.RequiredTypes()
	covered := make(map[string]bool, len(required))

	for _, entry := range report.Entries {
		if entry.Status != models.DocStatusDone || entry.Validation == nil || !entry.Validation.Valid {
			continue
		}
		covered[entry.DeclaredType] = true
	}

	summary := models.CompletenessSummary{Complete: true}
	for _, docType := range required {
		if !covered[docType] {
			summary.Complete = false
			summary.MissingRequired = append(summary.MissingRequired, docType)
			req := registry.RequirementsFor(docType)
			summary.Recommendations = append(summary.Recommendations,
				fmt.Sprintf("upload a valid %s", req.DisplayName))
		}
	}
	if len(required) > 0 {
		summary.Score = float64(len(required)-len(summary.MissingRequired)) / float64(len(required))
	} else {
		summary.Score = 1.0
	}
	return summary
}
