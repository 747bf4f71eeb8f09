package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/pkg/database"
)

func newTestGateway(t *testing.T) *SQLiteGateway {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.Run("../../migrations"))

	return NewSQLiteGateway(db, logger)
}

func testApplication() *models.Application {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Application{
		ID:            "app-1",
		BorrowerName:  "Jane Doe",
		BorrowerEmail: "jane@example.com",
		LoanAmount:    450000,
		Status:        models.AppStatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testDocument(id string) *models.Document {
	return &models.Document{
		ID:            id,
		ApplicationID: "app-1",
		DeclaredType:  "payslip",
		Filename:      "payslip.pdf",
		ContentHash:   "abc123",
		SizeBytes:     2048,
		UploadedAt:    time.Now().UTC().Truncate(time.Second),
		Status:        models.DocStatusUploaded,
	}
}

func TestSQLiteGatewayApplicationRoundTrip(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	app := testApplication()

	require.NoError(t, g.SaveApplication(ctx, app))

	loaded, err := g.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, app.BorrowerName, loaded.BorrowerName)
	assert.Equal(t, app.LoanAmount, loaded.LoanAmount)
	assert.Equal(t, app.Status, loaded.Status)
}

func TestSQLiteGatewayApplicationUpsert(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	app := testApplication()

	require.NoError(t, g.SaveApplication(ctx, app))
	app.Status = models.AppStatusProcessing
	require.NoError(t, g.SaveApplication(ctx, app))

	loaded, err := g.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.AppStatusProcessing, loaded.Status)
}

func TestSQLiteGatewayGetApplicationMissing(t *testing.T) {
	g := newTestGateway(t)

	loaded, err := g.GetApplication(context.Background(), "no-such-app")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteGatewayDocumentRoundTrip(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.SaveApplication(ctx, testApplication()))

	doc := testDocument("doc-1")
	doc.Status = models.DocStatusDone
	doc.Extraction = &models.ExtractionResult{
		Fields:     map[string]string{"employee_name": "Jane Doe"},
		Method:     models.MethodCloud,
		Confidence: 0.95,
	}
	doc.Validation = &models.ValidationResult{Valid: true, RecencyOK: true, CompletenessOK: true, FormatOK: true, Score: 1.0}
	doc.Analysis = &models.AnalysisResult{Summary: "clean", RiskScore: 0.1, RiskLevel: models.RiskLow, Method: models.MethodCloud}
	require.NoError(t, g.SaveDocument(ctx, doc))

	docs, err := g.ListDocuments(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	got := docs[0]
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, models.DocStatusDone, got.Status)
	require.NotNil(t, got.Extraction)
	assert.Equal(t, "Jane Doe", got.Extraction.Fields["employee_name"])
	require.NotNil(t, got.Validation)
	assert.True(t, got.Validation.Valid)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, models.RiskLow, got.Analysis.RiskLevel)
}

func TestSQLiteGatewayDocumentWithoutResults(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.SaveApplication(ctx, testApplication()))
	require.NoError(t, g.SaveDocument(ctx, testDocument("doc-1")))

	docs, err := g.ListDocuments(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Nil(t, docs[0].Extraction)
	assert.Nil(t, docs[0].Validation)
	assert.Nil(t, docs[0].Analysis)
}

func TestSQLiteGatewayApplicationDocumentIDs(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.SaveApplication(ctx, testApplication()))

	first := testDocument("doc-1")
	second := testDocument("doc-2")
	second.UploadedAt = first.UploadedAt.Add(time.Minute)
	require.NoError(t, g.SaveDocument(ctx, first))
	require.NoError(t, g.SaveDocument(ctx, second))

	loaded, err := g.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, loaded.DocumentIDs)
}

func TestSQLiteGatewayReportRoundTrip(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	report := &models.BatchReport{
		ApplicationID: "app-1",
		Flag:          models.BatchFlagPartial,
		Entries: map[string]*models.DocumentEntry{
			"doc-1": {DocumentID: "doc-1", DeclaredType: "payslip", Status: models.DocStatusDone},
			"doc-2": {DocumentID: "doc-2", DeclaredType: "bank_statement", Status: models.DocStatusFailed, Error: "ValidationFailure: recency exceeded"},
		},
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		FinishedAt: time.Now().UTC().Truncate(time.Second).Add(2 * time.Second),
	}
	require.NoError(t, g.SaveReport(ctx, report))

	loaded, err := g.LoadReport(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchFlagPartial, loaded.Flag)
	require.Len(t, loaded.Entries, 2)
	assert.Equal(t, models.DocStatusFailed, loaded.Entries["doc-2"].Status)
	assert.Contains(t, loaded.Entries["doc-2"].Error, "ValidationFailure")
}

func TestSQLiteGatewayReportReplaced(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	first := &models.BatchReport{ApplicationID: "app-1", Flag: models.BatchFlagPartial, Entries: map[string]*models.DocumentEntry{}}
	second := &models.BatchReport{ApplicationID: "app-1", Flag: models.BatchFlagSuccess, Entries: map[string]*models.DocumentEntry{}}
	require.NoError(t, g.SaveReport(ctx, first))
	require.NoError(t, g.SaveReport(ctx, second))

	loaded, err := g.LoadReport(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchFlagSuccess, loaded.Flag)
}

func TestSQLiteGatewayLoadReportNotFound(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.LoadReport(context.Background(), "no-such-app")
	assert.ErrorIs(t, err, models.ErrReportNotFound)
}

func TestSQLiteGatewayBackendName(t *testing.T) {
	g := newTestGateway(t)
	assert.Equal(t, "sqlite", g.Backend())
}
