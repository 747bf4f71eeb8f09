package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
	"github.com/lendfast/mortgage-intake/pkg/database"
)

const backendSQLite = "sqlite"

// SQLiteGateway is the local relational fallback tier.
type SQLiteGateway struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSQLiteGateway creates the fallback gateway over an open database.
func NewSQLiteGateway(db *database.DB, logger *zap.Logger) *SQLiteGateway {
	return &SQLiteGateway{db: db, logger: logger}
}

// Backend names the bound storage tier.
func (g *SQLiteGateway) Backend() string { return backendSQLite }

// SaveApplication upserts the application row.
func (g *SQLiteGateway) SaveApplication(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO applications (
			id, borrower_name, borrower_email, borrower_phone,
			loan_amount, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			borrower_name = excluded.borrower_name,
			borrower_email = excluded.borrower_email,
			borrower_phone = excluded.borrower_phone,
			loan_amount = excluded.loan_amount,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := g.db.ExecContext(ctx, query,
		app.ID, app.BorrowerName, app.BorrowerEmail, app.BorrowerPhone,
		app.LoanAmount, app.Status, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		g.logger.Error("Failed to save application", zap.String("application_id", app.ID), zap.Error(err))
		return &models.PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}
	return nil
}

// GetApplication returns the application, or nil when it does not exist.
func (g *SQLiteGateway) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	query := `
		SELECT id, borrower_name, borrower_email, borrower_phone,
			loan_amount, status, created_at, updated_at
		FROM applications
		WHERE id = ?
	`
	var app models.Application
	err := g.db.QueryRowContext(ctx, query, id).Scan(
		&app.ID, &app.BorrowerName, &app.BorrowerEmail, &app.BorrowerPhone,
		&app.LoanAmount, &app.Status, &app.CreatedAt, &app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}

	rows, err := g.db.QueryContext(ctx,
		"SELECT id FROM documents WHERE application_id = ? ORDER BY uploaded_at", id)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
		}
		app.DocumentIDs = append(app.DocumentIDs, docID)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}
	return &app, nil
}

// SaveDocument upserts the document row. Stage results are stored as JSON
// columns since no query ever filters inside them.
func (g *SQLiteGateway) SaveDocument(ctx context.Context, doc *models.Document) error {
	extraction, err := marshalNullable(doc.Extraction)
	if err != nil {
		return &models.PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}
	validation, err := marshalNullable(doc.Validation)
	if err != nil {
		return &models.PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}
	analysis, err := marshalNullable(doc.Analysis)
	if err != nil {
		return &models.PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}

	query := `
		INSERT INTO documents (
			id, application_id, declared_type, filename, storage_locator,
			content_hash, size_bytes, uploaded_at, status, failure_message,
			extraction, validation, analysis
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			failure_message = excluded.failure_message,
			extraction = excluded.extraction,
			validation = excluded.validation,
			analysis = excluded.analysis
	`
	_, err = g.db.ExecContext(ctx, query,
		doc.ID, doc.ApplicationID, doc.DeclaredType, doc.Filename, doc.StorageLocator,
		doc.ContentHash, doc.SizeBytes, doc.UploadedAt, doc.Status, doc.FailureMessage,
		extraction, validation, analysis,
	)
	if err != nil {
		g.logger.Error("Failed to save document", zap.String("document_id", doc.ID), zap.Error(err))
		return &models.PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}
	return nil
}

// ListDocuments returns the application's documents in upload order.
func (g *SQLiteGateway) ListDocuments(ctx context.Context, applicationID string) ([]*models.Document, error) {
	query := `
		SELECT id, application_id, declared_type, filename, storage_locator,
			content_hash, size_bytes, uploaded_at, status, failure_message,
			extraction, validation, analysis
		FROM documents
		WHERE application_id = ?
		ORDER BY uploaded_at, id
	`
	rows, err := g.db.QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var extraction, validation, analysis sql.NullString
		if err := rows.Scan(
			&doc.ID, &doc.ApplicationID, &doc.DeclaredType, &doc.Filename, &doc.StorageLocator,
			&doc.ContentHash, &doc.SizeBytes, &doc.UploadedAt, &doc.Status, &doc.FailureMessage,
			&extraction, &validation, &analysis,
		); err != nil {
			return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
		}
		if err := unmarshalNullable(extraction, &doc.Extraction); err != nil {
			return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
		}
		if err := unmarshalNullable(validation, &doc.Validation); err != nil {
			return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
		}
		if err := unmarshalNullable(analysis, &doc.Analysis); err != nil {
			return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}
	return docs, nil
}

// SaveReport stores the batch report, replacing any earlier report for the
// same application.
func (g *SQLiteGateway) SaveReport(ctx context.Context, report *models.BatchReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return &models.PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}

	query := `
		INSERT INTO batch_reports (application_id, report, flag, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(application_id) DO UPDATE SET
			report = excluded.report,
			flag = excluded.flag,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`
	_, err = g.db.ExecContext(ctx, query,
		report.ApplicationID, string(payload), report.Flag, report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		g.logger.Error("Failed to save batch report",
			zap.String("application_id", report.ApplicationID),
			zap.Error(err))
		return &models.PersistenceError{Op: "save", Backend: backendSQLite, Err: err}
	}

	g.logger.Info("Batch report saved",
		zap.String("application_id", report.ApplicationID),
		zap.String("backend", backendSQLite))
	return nil
}

// LoadReport returns the stored batch report for an application.
func (g *SQLiteGateway) LoadReport(ctx context.Context, applicationID string) (*models.BatchReport, error) {
	var payload string
	err := g.db.QueryRowContext(ctx,
		"SELECT report FROM batch_reports WHERE application_id = ?", applicationID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, models.ErrReportNotFound
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: err}
	}

	var report models.BatchReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, &models.PersistenceError{Op: "load", Backend: backendSQLite, Err: fmt.Errorf("corrupt report payload: %w", err)}
	}
	return &report, nil
}

func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable[T any](col sql.NullString, dst **T) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}
