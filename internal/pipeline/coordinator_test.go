package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/analyze"
	"github.com/lendfast/mortgage-intake/internal/extract"
	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/registry"
	"github.com/lendfast/mortgage-intake/internal/validate"
)

// stubExtractor returns canned fields keyed by filename.
type stubExtractor struct {
	results map[string]*models.ExtractionResult
	errs    map[string]error
	running int32
	peak    int32
	mu      sync.Mutex
}

func (s *stubExtractor) Extract(ctx context.Context, in extract.Input) (*models.ExtractionResult, error) {
	n := atomic.AddInt32(&s.running, 1)
	defer atomic.AddInt32(&s.running, -1)
	s.mu.Lock()
	if n > s.peak {
		s.peak = n
	}
	s.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	if err, ok := s.errs[in.Filename]; ok {
		return nil, err
	}
	if result, ok := s.results[in.Filename]; ok {
		return result, nil
	}
	return &models.ExtractionResult{Fields: map[string]string{}, Method: models.MethodCloud, Confidence: 0.9}, nil
}

func (s *stubExtractor) Method() string { return models.MethodCloud }

func newCoordinator(t *testing.T, extractor extract.Extractor, workers int, analyzeInvalid bool) *Coordinator {
	t.Helper()
	return NewCoordinator(
		extractor,
		validate.New(),
		analyze.NewFallbackAnalyzer(zap.NewNop()),
		workers,
		analyzeInvalid,
		zap.NewNop(),
	)
}

func newDoc(id, declaredType, filename string) *models.Document {
	return &models.Document{
		ID:           id,
		DeclaredType: declaredType,
		Filename:     filename,
		Status:       models.DocStatusUploaded,
	}
}

func recentDate() string {
	return time.Now().UTC().AddDate(0, 0, -5).Format("2006-01-02")
}

func TestProcessBatchAllSucceed(t *testing.T) {
	extractor := &stubExtractor{results: map[string]*models.ExtractionResult{
		"passport.pdf": {Fields: map[string]string{"full_name": "Jane Doe", "id_number": "AB123456"}, Method: models.MethodCloud, Confidence: 0.95},
		"payslip.pdf": {Fields: map[string]string{
			"employee_name": "Jane Doe",
			"employer_name": "Acme Corp",
			"pay_date":      recentDate(),
			"gross_salary":  "5200",
		}, Method: models.MethodCloud, Confidence: 0.95},
	}}
	c := newCoordinator(t, extractor, 3, true)

	docs := []BatchInput{
		{Document: newDoc("doc-1", registry.TypeIDProof, "passport.pdf"), Data: []byte("x")},
		{Document: newDoc("doc-2", registry.TypePayslip, "payslip.pdf"), Data: []byte("x")},
	}
	report := c.ProcessBatch(context.Background(), "app-1", docs)

	assert.Equal(t, models.BatchFlagSuccess, report.Flag)
	require.Len(t, report.Entries, 2)
	for _, in := range docs {
		entry := report.Entries[in.Document.ID]
		require.NotNil(t, entry)
		assert.Equal(t, models.DocStatusDone, entry.Status)
		assert.Empty(t, entry.Error)
		assert.NotNil(t, entry.Extraction)
		assert.NotNil(t, entry.Validation)
		assert.NotNil(t, entry.Analysis)
		assert.Equal(t, models.DocStatusDone, in.Document.Status)
	}
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestProcessBatchFaultIsolation(t *testing.T) {
	extractor := &stubExtractor{
		results: map[string]*models.ExtractionResult{
			"ok1.pdf": {Fields: map[string]string{"full_name": "A B", "id_number": "X1234567"}, Confidence: 0.9},
			"ok2.pdf": {Fields: map[string]string{"full_name": "C D", "id_number": "Y1234567"}, Confidence: 0.9},
		},
		errs: map[string]error{
			"broken.pdf": &models.ExtractionError{Filename: "broken.pdf", Reason: "corrupt file"},
		},
	}
	c := newCoordinator(t, extractor, 3, true)

	report := c.ProcessBatch(context.Background(), "app-1", []BatchInput{
		{Document: newDoc("doc-1", registry.TypeIDProof, "ok1.pdf"), Data: []byte("x")},
		{Document: newDoc("doc-2", registry.TypeIDProof, "broken.pdf"), Data: []byte("x")},
		{Document: newDoc("doc-3", registry.TypeIDProof, "ok2.pdf"), Data: []byte("x")},
	})

	require.Len(t, report.Entries, 3)
	assert.Equal(t, models.BatchFlagPartial, report.Flag)
	assert.Equal(t, models.DocStatusDone, report.Entries["doc-1"].Status)
	assert.Equal(t, models.DocStatusDone, report.Entries["doc-3"].Status)

	failed := report.Entries["doc-2"]
	assert.Equal(t, models.DocStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "corrupt file")
}

func TestProcessBatchExampleScenario(t *testing.T) {
	fourMonthsAgo := time.Now().UTC().AddDate(0, -4, 0).Format("2006-01-02")
	extractor := &stubExtractor{results: map[string]*models.ExtractionResult{
		"passport.pdf": {Fields: map[string]string{"full_name": "Jane Doe", "id_number": "AB123456"}, Confidence: 0.95},
		"payslip.pdf": {Fields: map[string]string{
			"employee_name": "Jane Doe",
			"pay_date":      recentDate(),
			"gross_salary":  "5200",
		}, Confidence: 0.95},
		"statement.pdf": {Fields: map[string]string{
			"account_holder_name": "Jane Doe",
			"account_number":      "12345678",
			"statement_date":      fourMonthsAgo,
		}, Confidence: 0.95},
	}}
	c := newCoordinator(t, extractor, 3, true)

	report := c.ProcessBatch(context.Background(), "app-1", []BatchInput{
		{Document: newDoc("doc-id", registry.TypeIDProof, "passport.pdf"), Data: []byte("x")},
		{Document: newDoc("doc-pay", registry.TypePayslip, "payslip.pdf"), Data: []byte("x")},
		{Document: newDoc("doc-stmt", registry.TypeBankStatement, "statement.pdf"), Data: []byte("x")},
	})

	assert.Equal(t, models.BatchFlagPartial, report.Flag)
	require.Len(t, report.Entries, 3)

	assert.Equal(t, models.DocStatusDone, report.Entries["doc-id"].Status)

	payslip := report.Entries["doc-pay"]
	assert.Equal(t, models.DocStatusFailed, payslip.Status)
	assert.Contains(t, payslip.Error, "ValidationFailure")
	assert.Contains(t, payslip.Error, "employer_name")

	stmt := report.Entries["doc-stmt"]
	assert.Equal(t, models.DocStatusFailed, stmt.Status)
	assert.Contains(t, stmt.Error, "ValidationFailure")
	assert.Contains(t, stmt.Error, "older than 90 days")
}

func TestProcessBatchAnalyzeInvalidPolicy(t *testing.T) {
	incomplete := map[string]*models.ExtractionResult{
		"payslip.pdf": {Fields: map[string]string{"employee_name": "Jane Doe"}, Confidence: 0.9},
	}

	t.Run("analysis attached when enabled", func(t *testing.T) {
		c := newCoordinator(t, &stubExtractor{results: incomplete}, 1, true)
		report := c.ProcessBatch(context.Background(), "app-1", []BatchInput{
			{Document: newDoc("doc-1", registry.TypePayslip, "payslip.pdf"), Data: []byte("x")},
		})
		entry := report.Entries["doc-1"]
		assert.Equal(t, models.DocStatusFailed, entry.Status)
		assert.NotNil(t, entry.Analysis)
	})

	t.Run("analysis skipped when disabled", func(t *testing.T) {
		c := newCoordinator(t, &stubExtractor{results: incomplete}, 1, false)
		report := c.ProcessBatch(context.Background(), "app-1", []BatchInput{
			{Document: newDoc("doc-1", registry.TypePayslip, "payslip.pdf"), Data: []byte("x")},
		})
		entry := report.Entries["doc-1"]
		assert.Equal(t, models.DocStatusFailed, entry.Status)
		assert.Nil(t, entry.Analysis)
	})
}

func TestProcessBatchBoundedConcurrency(t *testing.T) {
	extractor := &stubExtractor{results: map[string]*models.ExtractionResult{}}
	for i := 0; i < 12; i++ {
		extractor.results[fmt.Sprintf("doc%d.pdf", i)] = &models.ExtractionResult{
			Fields:     map[string]string{"full_name": "Jane Doe", "id_number": "AB123456"},
			Confidence: 0.9,
		}
	}
	c := newCoordinator(t, extractor, 3, true)

	var inputs []BatchInput
	for i := 0; i < 12; i++ {
		inputs = append(inputs, BatchInput{
			Document: newDoc(fmt.Sprintf("doc-%d", i), registry.TypeIDProof, fmt.Sprintf("doc%d.pdf", i)),
			Data:     []byte("x"),
		})
	}
	report := c.ProcessBatch(context.Background(), "app-1", inputs)

	assert.Len(t, report.Entries, 12)
	assert.LessOrEqual(t, extractor.peak, int32(3))
	assert.Equal(t, models.BatchFlagSuccess, report.Flag)
}

func TestProcessBatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newCoordinator(t, &stubExtractor{}, 3, true)
	report := c.ProcessBatch(ctx, "app-1", []BatchInput{
		{Document: newDoc("doc-1", registry.TypeIDProof, "a.pdf"), Data: []byte("x")},
		{Document: newDoc("doc-2", registry.TypeIDProof, "b.pdf"), Data: []byte("x")},
	})

	require.Len(t, report.Entries, 2)
	assert.Equal(t, models.BatchFlagPartial, report.Flag)
	for _, entry := range report.Entries {
		assert.Equal(t, models.DocStatusFailed, entry.Status)
		assert.Contains(t, entry.Error, "batch cancelled")
	}
}

func TestProcessBatchStatusesTerminal(t *testing.T) {
	extractor := &stubExtractor{
		results: map[string]*models.ExtractionResult{
			"ok.pdf": {Fields: map[string]string{"full_name": "A B", "id_number": "X1234567"}, Confidence: 0.9},
		},
		errs: map[string]error{"bad.pdf": errors.New("boom")},
	}
	c := newCoordinator(t, extractor, 2, true)

	docs := []BatchInput{
		{Document: newDoc("doc-1", registry.TypeIDProof, "ok.pdf"), Data: []byte("x")},
		{Document: newDoc("doc-2", registry.TypeIDProof, "bad.pdf"), Data: []byte("x")},
	}
	c.ProcessBatch(context.Background(), "app-1", docs)

	for _, in := range docs {
		assert.True(t, models.IsTerminalDocStatus(in.Document.Status),
			"document %s ended in non-terminal status %s", in.Document.ID, in.Document.Status)
	}
}

func TestProcessBatchCompleteness(t *testing.T) {
	extractor := &stubExtractor{results: map[string]*models.ExtractionResult{
		"passport.pdf": {Fields: map[string]string{"full_name": "Jane Doe", "id_number": "AB123456"}, Confidence: 0.95},
	}}
	c := newCoordinator(t, extractor, 3, true)

	report := c.ProcessBatch(context.Background(), "app-1", []BatchInput{
		{Document: newDoc("doc-1", registry.TypeIDProof, "passport.pdf"), Data: []byte("x")},
	})

	required := registry.RequiredTypes()
	assert.False(t, report.Completeness.Complete)
	assert.Len(t, report.Completeness.MissingRequired, len(required)-1)
	assert.NotContains(t, report.Completeness.MissingRequired, registry.TypeIDProof)
	assert.InDelta(t, 1.0/float64(len(required)), report.Completeness.Score, 0.001)
	assert.NotEmpty(t, report.Completeness.Recommendations)
}

func TestProcessBatchEmpty(t *testing.T) {
	c := newCoordinator(t, &stubExtractor{}, 3, true)
	report := c.ProcessBatch(context.Background(), "app-1", nil)

	assert.Empty(t, report.Entries)
	assert.Equal(t, models.BatchFlagSuccess, report.Flag)
	assert.False(t, report.Completeness.Complete)
}
