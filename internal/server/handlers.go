package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/export"
	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/internal/persistence"
	"github.com/lendfast/mortgage-intake/internal/pipeline"
	"github.com/lendfast/mortgage-intake/internal/registry"
	"github.com/lendfast/mortgage-intake/internal/storage"
	"github.com/lendfast/mortgage-intake/pkg/utils"
)

// Handlers contains all HTTP request handlers.
type Handlers struct {
	coordinator *pipeline.Coordinator
	gateway     persistence.Gateway
	store       storage.ObjectStore
	exporter    *export.ReportExporter
	logger      *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	coordinator *pipeline.Coordinator,
	gateway persistence.Gateway,
	store storage.ObjectStore,
	exporter *export.ReportExporter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		gateway:     gateway,
		store:       store,
		exporter:    exporter,
		logger:      logger,
	}
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateApplicationRequest is the body of POST /api/v1/applications.
type CreateApplicationRequest struct {
	BorrowerName  string  `json:"borrower_name" binding:"required"`
	BorrowerEmail string  `json:"borrower_email"`
	BorrowerPhone string  `json:"borrower_phone"`
	LoanAmount    float64 `json:"loan_amount"`
}

// StatusResponse summarizes an application and its documents.
type StatusResponse struct {
	Application *models.Application `json:"application"`
	Documents   []*models.Document  `json:"documents"`
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":              "healthy",
			"timestamp":           time.Now().UTC().Format(time.RFC3339),
			"persistence_backend": h.gateway.Backend(),
			"storage_backend":     h.store.Backend(),
		},
	})
}

// CreateApplication handles POST /api/v1/applications.
func (h *Handlers) CreateApplication(c *gin.Context) {
	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:            uuid.NewString(),
		BorrowerName:  req.BorrowerName,
		BorrowerEmail: req.BorrowerEmail,
		BorrowerPhone: req.BorrowerPhone,
		LoanAmount:    req.LoanAmount,
		Status:        models.AppStatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.gateway.SaveApplication(c.Request.Context(), app); err != nil {
		h.logger.Error("Failed to create application", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to create application"})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: app})
}

// UploadDocuments handles POST /api/v1/applications/:id/documents. The
// multipart form carries one or more files under "documents"; each file's
// declared type comes from a parallel "declared_types" field, falling back
// to a filename-based suggestion. The batch is processed synchronously and
// the report returned.
func (h *Handlers) UploadDocuments(c *gin.Context) {
	applicationID := c.Param("id")
	ctx := c.Request.Context()

	app, err := h.gateway.GetApplication(ctx, applicationID)
	if err != nil {
		h.logger.Error("Failed to load application", zap.String("application_id", applicationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load application"})
		return
	}
	if app == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "application not found"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid multipart form"})
		return
	}
	files := form.File["documents"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "no documents in request"})
		return
	}
	declaredTypes := form.Value["declared_types"]

	now := time.Now().UTC()
	var inputs []pipeline.BatchInput
	for i, fileHeader := range files {
		data, err := readUpload(fileHeader)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false,
				Error: fmt.Sprintf("failed to read upload %s", fileHeader.Filename)})
			return
		}

		declaredType := ""
		if i < len(declaredTypes) {
			declaredType = declaredTypes[i]
		}
		if declaredType == "" {
			declaredType = registry.SuggestType(fileHeader.Filename)
		}

		doc := &models.Document{
			ID:            uuid.NewString(),
			ApplicationID: applicationID,
			DeclaredType:  declaredType,
			Filename:      fileHeader.Filename,
			ContentHash:   utils.ContentHash(data),
			SizeBytes:     int64(len(data)),
			UploadedAt:    now,
			Status:        models.DocStatusUploaded,
		}

		key := fmt.Sprintf("%s/%s/%s", applicationID, doc.ID, fileHeader.Filename)
		locator, err := h.store.Put(ctx, key, data)
		if err != nil {
			h.logger.Error("Failed to store upload",
				zap.String("document_id", doc.ID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to store upload"})
			return
		}
		doc.StorageLocator = locator

		if err := h.gateway.SaveDocument(ctx, doc); err != nil {
			h.logger.Error("Failed to save document record", zap.String("document_id", doc.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to save document"})
			return
		}

		inputs = append(inputs, pipeline.BatchInput{Document: doc, Data: data})
	}

	app.Status = models.AppStatusProcessing
	app.UpdatedAt = time.Now().UTC()
	if err := h.gateway.SaveApplication(ctx, app); err != nil {
		h.logger.Warn("Failed to update application status", zap.Error(err))
	}

	report := h.coordinator.ProcessBatch(ctx, applicationID, inputs)

	for _, in := range inputs {
		if err := h.gateway.SaveDocument(ctx, in.Document); err != nil {
			h.logger.Error("Failed to save processed document",
				zap.String("document_id", in.Document.ID),
				zap.Error(err))
		}
	}
	if err := h.gateway.SaveReport(ctx, report); err != nil {
		h.logger.Error("Failed to save batch report", zap.String("application_id", applicationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to save batch report"})
		return
	}

	if report.Completeness.Complete {
		app.Status = models.AppStatusReviewed
	} else {
		app.Status = models.AppStatusDocumentsPending
	}
	app.UpdatedAt = time.Now().UTC()
	if err := h.gateway.SaveApplication(ctx, app); err != nil {
		h.logger.Warn("Failed to update application status", zap.Error(err))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// GetStatus handles GET /api/v1/applications/:id/status.
func (h *Handlers) GetStatus(c *gin.Context) {
	applicationID := c.Param("id")
	ctx := c.Request.Context()

	app, err := h.gateway.GetApplication(ctx, applicationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load application"})
		return
	}
	if app == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "application not found"})
		return
	}

	docs, err := h.gateway.ListDocuments(ctx, applicationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load documents"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: StatusResponse{Application: app, Documents: docs}})
}

// GetReport handles GET /api/v1/applications/:id/report.
func (h *Handlers) GetReport(c *gin.Context) {
	report, ok := h.loadReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// ExportReport handles GET /api/v1/applications/:id/report/export.
func (h *Handlers) ExportReport(c *gin.Context) {
	report, ok := h.loadReport(c)
	if !ok {
		return
	}

	data, err := h.exporter.Export(report)
	if err != nil {
		h.logger.Error("Failed to export report",
			zap.String("application_id", report.ApplicationID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to export report"})
		return
	}

	filename := fmt.Sprintf("report-%s.xlsx", report.ApplicationID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *Handlers) loadReport(c *gin.Context) (*models.BatchReport, bool) {
	applicationID := c.Param("id")

	report, err := h.gateway.LoadReport(c.Request.Context(), applicationID)
	if errors.Is(err, models.ErrReportNotFound) {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "no report for application"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load report", zap.String("application_id", applicationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to load report"})
		return nil, false
	}
	return report, true
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
