// Package persistence stores applications, documents, and batch reports.
// Two gateway implementations exist: an Elasticsearch document store and a
// local SQLite fallback. One is bound at startup for the process lifetime.
package persistence

import (
	"context"

	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
)

// Gateway is the storage contract the rest of the service programs against.
// LoadReport returns models.ErrReportNotFound when no batch has been
// processed for the application.
type Gateway interface {
	SaveApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	SaveDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context, applicationID string) ([]*models.Document, error)
	SaveReport(ctx context.Context, report *models.BatchReport) error
	LoadReport(ctx context.Context, applicationID string) (*models.BatchReport, error)
	Backend() string
}

// Select probes the Elasticsearch gateway once and binds the tier the
// process will use. The SQLite fallback must already be open; a dead
// fallback is fatal upstream since there is no third tier.
func Select(ctx context.Context, elastic *ElasticGateway, sqlite *SQLiteGateway, logger *zap.Logger) Gateway {
	if elastic == nil {
		logger.Warn("No document database configured, using local SQLite store")
		return sqlite
	}
	if err := elastic.Probe(ctx); err != nil {
		logger.Warn("Document database unreachable, using local SQLite store", zap.Error(err))
		return sqlite
	}
	logger.Info("Document database available")
	return elastic
}
