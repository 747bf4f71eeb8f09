package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/analyze"
	"github.com/lendfast/mortgage-intake/internal/config"
	"github.com/lendfast/mortgage-intake/internal/export"
	"github.com/lendfast/mortgage-intake/internal/extract"
	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/persistence"
	"github.com/lendfast/mortgage-intake/internal/pipeline"
	"github.com/lendfast/mortgage-intake/internal/storage"
	"github.com/lendfast/mortgage-intake/internal/validate"
	"github.com/lendfast/mortgage-intake/pkg/database"
)

// stubExtractor returns canned extraction results keyed by filename so
// handler tests exercise the pipeline without a cloud backend.
type stubExtractor struct {
	results map[string]*models.ExtractionResult
	errs    map[string]error
}

func (s *stubExtractor) Extract(_ context.Context, in extract.Input) (*models.ExtractionResult, error) {
	if err, ok := s.errs[in.Filename]; ok {
		return nil, err
	}
	if res, ok := s.results[in.Filename]; ok {
		return res, nil
	}
	return &models.ExtractionResult{Fields: map[string]string{}, Method: models.MethodCloud, Confidence: 0.9}, nil
}

func (s *stubExtractor) Method() string { return models.MethodCloud }

type testEnv struct {
	server  *Server
	gateway persistence.Gateway
}

func newTestEnv(t *testing.T, extractor extract.Extractor) *testEnv {
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

	gateway := persistence.NewSQLiteGateway(db, logger)
	store := storage.NewLocalStore(t.TempDir(), logger)
	coordinator := pipeline.NewCoordinator(
		extractor,
		validate.New(),
		analyze.NewFallbackAnalyzer(logger),
		2,
		true,
		logger,
	)

	srv := NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 0},
		coordinator,
		gateway,
		store,
		export.NewReportExporter(logger),
		extract.DefaultMaxFileSize,
		logger,
	)
	return &testEnv{server: srv, gateway: gateway}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func (e *testEnv) createApplication(t *testing.T) string {
	t.Helper()
	body := `{"borrower_name":"Jane Doe","borrower_email":"jane@example.com","loan_amount":350000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := e.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool               `json:"success"`
		Data    models.Application `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Data.ID)
	require.Equal(t, models.AppStatusCreated, resp.Data.Status)
	return resp.Data.ID
}

func uploadRequest(t *testing.T, appID string, files map[string]string, declaredTypes []string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for filename, content := range files {
		part, err := writer.CreateFormFile("documents", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for _, dt := range declaredTypes {
		require.NoError(t, writer.WriteField("declared_types", dt))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/applications/%s/documents", appID), &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

type reportEnvelope struct {
	Success bool               `json:"success"`
	Data    models.BatchReport `json:"data"`
	Error   string             `json:"error"`
}

func passingPayslipExtraction() *models.ExtractionResult {
	return &models.ExtractionResult{
		Fields: map[string]string{
			"employee_name": "Jane Doe",
			"employer_name": "Acme Corp",
			"pay_date":      time.Now().UTC().AddDate(0, 0, -10).Format("2006-01-02"),
			"gross_salary":  "5200.00",
		},
		Method:     models.MethodCloud,
		Confidence: 0.95,
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, &stubExtractor{})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", resp.Data["status"])
	assert.Equal(t, "sqlite", resp.Data["persistence_backend"])
	assert.Equal(t, "local", resp.Data["storage_backend"])
}

func TestCreateApplicationRejectsMissingName(t *testing.T) {
	env := newTestEnv(t, &stubExtractor{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications",
		strings.NewReader(`{"loan_amount":100000}`))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadDocumentsFullFlow(t *testing.T) {
	extractor := &stubExtractor{
		results: map[string]*models.ExtractionResult{
			"payslip.pdf": passingPayslipExtraction(),
		},
		errs: map[string]error{
			"statement.pdf": &models.ExtractionError{Filename: "statement.pdf", Reason: "unreadable file"},
		},
	}
	env := newTestEnv(t, extractor)
	appID := env.createApplication(t)

	req := uploadRequest(t, appID, map[string]string{
		"payslip.pdf":   "payslip bytes",
		"statement.pdf": "statement bytes",
	}, nil)
	w := env.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp reportEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	report := resp.Data
	assert.Equal(t, appID, report.ApplicationID)
	assert.Len(t, report.Entries, 2)
	assert.Equal(t, models.BatchFlagPartial, report.Flag)

	var payslip, statement *models.DocumentEntry
	for _, e := range report.Entries {
		switch e.Filename {
		case "payslip.pdf":
			payslip = e
		case "statement.pdf":
			statement = e
		}
	}
	require.NotNil(t, payslip)
	require.NotNil(t, statement)

	assert.Equal(t, models.DocStatusDone, payslip.Status)
	assert.Equal(t, "payslip", payslip.DeclaredType)
	require.NotNil(t, payslip.Validation)
	assert.True(t, payslip.Validation.Valid)
	assert.NotNil(t, payslip.Analysis)

	assert.Equal(t, models.DocStatusFailed, statement.Status)
	assert.Contains(t, statement.Error, "unreadable file")

	// The batch covered only one of the required document types.
	assert.False(t, report.Completeness.Complete)
	assert.Contains(t, report.Completeness.MissingRequired, "id_proof")

	docs, err := env.gateway.ListDocuments(context.Background(), appID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.True(t, models.IsTerminalDocStatus(d.Status), "document %s left in %s", d.ID, d.Status)
		assert.NotEmpty(t, d.StorageLocator)
		assert.NotEmpty(t, d.ContentHash)
	}

	app, err := env.gateway.GetApplication(context.Background(), appID)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, models.AppStatusDocumentsPending, app.Status)
}

func TestUploadDocumentsDeclaredTypeOverridesFilename(t *testing.T) {
	extraction := passingPayslipExtraction()
	extractor := &stubExtractor{
		results: map[string]*models.ExtractionResult{"scan-001.pdf": extraction},
	}
	env := newTestEnv(t, extractor)
	appID := env.createApplication(t)

	w := env.do(t, uploadRequest(t, appID,
		map[string]string{"scan-001.pdf": "bytes"}, []string{"payslip"}))
	require.Equal(t, http.StatusOK, w.Code)

	var resp reportEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Entries, 1)
	for _, e := range resp.Data.Entries {
		assert.Equal(t, "payslip", e.DeclaredType)
	}
}

func TestUploadDocumentsUnknownApplication(t *testing.T) {
	env := newTestEnv(t, &stubExtractor{})

	w := env.do(t, uploadRequest(t, "no-such-app", map[string]string{"payslip.pdf": "bytes"}, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadDocumentsEmptyForm(t *testing.T) {
	env := newTestEnv(t, &stubExtractor{})
	appID := env.createApplication(t)

	w := env.do(t, uploadRequest(t, appID, nil, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus(t *testing.T) {
	extractor := &stubExtractor{
		results: map[string]*models.ExtractionResult{"payslip.pdf": passingPayslipExtraction()},
	}
	env := newTestEnv(t, extractor)
	appID := env.createApplication(t)

	w := env.do(t, uploadRequest(t, appID, map[string]string{"payslip.pdf": "bytes"}, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/applications/%s/status", appID), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool           `json:"success"`
		Data    StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Application)
	assert.Equal(t, appID, resp.Data.Application.ID)
	require.Len(t, resp.Data.Documents, 1)
	assert.Equal(t, models.DocStatusDone, resp.Data.Documents[0].Status)
}

func TestGetStatusUnknownApplication(t *testing.T) {
	env := newTestEnv(t, &stubExtractor{})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/applications/missing/status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetReportBeforeUpload(t *testing.T) {
	env := newTestEnv(t, &stubExtractor{})
	appID := env.createApplication(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/applications/%s/report", appID), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetReportAfterUpload(t *testing.T) {
	extractor := &stubExtractor{
		results: map[string]*models.ExtractionResult{"payslip.pdf": passingPayslipExtraction()},
	}
	env := newTestEnv(t, extractor)
	appID := env.createApplication(t)

	w := env.do(t, uploadRequest(t, appID, map[string]string{"payslip.pdf": "bytes"}, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/applications/%s/report", appID), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp reportEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, appID, resp.Data.ApplicationID)
	assert.Equal(t, models.BatchFlagSuccess, resp.Data.Flag)
	assert.Len(t, resp.Data.Entries, 1)
}

func TestExportReport(t *testing.T) {
	extractor := &stubExtractor{
		results: map[string]*models.ExtractionResult{"payslip.pdf": passingPayslipExtraction()},
	}
	env := newTestEnv(t, extractor)
	appID := env.createApplication(t)

	w := env.do(t, uploadRequest(t, appID, map[string]string{"payslip.pdf": "bytes"}, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/applications/%s/report/export", appID), nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), appID)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	appCell, err := f.GetCellValue("Document Review", "B1")
	require.NoError(t, err)
	assert.Equal(t, appID, appCell)
}

func TestExportReportBeforeUpload(t *testing.T) {
	env := newTestEnv(t, &stubExtractor{})
	appID := env.createApplication(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/applications/%s/report/export", appID), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
