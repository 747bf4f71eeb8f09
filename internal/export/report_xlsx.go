// Package export renders batch reports as spreadsheets for assessor
// review.
package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
)

const sheetName = "Document Review"

// ReportExporter renders a BatchReport into an xlsx workbook.
type ReportExporter struct {
	logger *zap.Logger
}

// NewReportExporter creates an exporter.
func NewReportExporter(logger *zap.Logger) *ReportExporter {
	return &ReportExporter{logger: logger}
}

// Export builds the review workbook: a summary block followed by one row
// per document, ordered by declared type priority then document ID.
func (e *ReportExporter) Export(report *models.BatchReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	e.setCell(f, "A1", "Application")
	e.setCell(f, "B1", report.ApplicationID)
	e.setCell(f, "A2", "Batch outcome")
	e.setCell(f, "B2", report.Flag)
	e.setCell(f, "A3", "Processed")
	e.setCell(f, "B3", fmt.Sprintf("%d done, %d failed", report.DoneCount(), report.FailedCount()))
	e.setCell(f, "A4", "Completeness")
	e.setCell(f, "B4", fmt.Sprintf("%.0f%%", report.Completeness.Score*100))
	if len(report.Completeness.MissingRequired) > 0 {
		e.setCell(f, "A5", "Missing required")
		e.setCell(f, "B5", strings.Join(report.Completeness.MissingRequired, ", "))
	}

	headers := []string{"Document ID", "Type", "Filename", "Status", "Validation Score", "Risk Level", "Risk Score", "Issues", "Fraud Indicators"}
	headerRow := 7
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, headerRow)
		if err != nil {
			return nil, fmt.Errorf("failed to build cell name: %w", err)
		}
		e.setCell(f, cell, h)
	}

	for i, entry := range sortedEntries(report) {
		row := headerRow + 1 + i
		values := []string{
			entry.DocumentID,
			registry.RequirementsFor(entry.DeclaredType).DisplayName,
			entry.Filename,
			entry.Status,
			validationScore(entry),
			riskLevel(entry),
			riskScore(entry),
			issues(entry),
			fraudIndicators(entry),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell name: %w", err)
			}
			e.setCell(f, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Report exported",
		zap.String("application_id", report.ApplicationID),
		zap.Int("documents", len(report.Entries)),
		zap.Int("size_bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (e *ReportExporter) setCell(f *excelize.File, cell, value string) {
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func sortedEntries(report *models.BatchReport) []*models.DocumentEntry {
	entries := make([]*models.DocumentEntry, 0, len(report.Entries))
	for _, entry := range report.Entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		pi := registry.RequirementsFor(entries[i].DeclaredType).Priority
		pj := registry.RequirementsFor(entries[j].DeclaredType).Priority
		if pi != pj {
			return pi > pj
		}
		return entries[i].DocumentID < entries[j].DocumentID
	})
	return entries
}

func validationScore(entry *models.DocumentEntry) string {
	if entry.Validation == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", entry.Validation.Score)
}

func riskLevel(entry *models.DocumentEntry) string {
	if entry.Analysis == nil {
		return ""
	}
	return entry.Analysis.RiskLevel
}

func riskScore(entry *models.DocumentEntry) string {
	if entry.Analysis == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", entry.Analysis.RiskScore)
}

func issues(entry *models.DocumentEntry) string {
	var parts []string
	if entry.Error != "" {
		parts = append(parts, entry.Error)
	}
	if entry.Validation != nil {
		parts = append(parts, entry.Validation.Warnings...)
	}
	return strings.Join(parts, "; ")
}

func fraudIndicators(entry *models.DocumentEntry) string {
	if entry.Analysis == nil {
		return ""
	}
	return strings.Join(entry.Analysis.FraudIndicators, "; ")
}
