// Package analyze produces a risk assessment for each document after
// validation. Like extraction it has a cloud implementation and a local
// heuristic fallback, selected once at startup.
package analyze

import (
	"context"

	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/models"
)

// Input carries everything the analyzer needs about one document.
type Input struct {
	DeclaredType string
	Filename     string
	Extraction   *models.ExtractionResult
	Validation   *models.ValidationResult
}

// Analyzer assesses a document's risk profile.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (*models.AnalysisResult, error)
	Method() string
}

// Select probes the cloud analyzer once and binds the implementation the
// process will use for its lifetime.
func Select(ctx context.Context, cloud *CloudAnalyzer, fallback *FallbackAnalyzer, logger *zap.Logger) Analyzer {
	if cloud == nil {
		logger.Warn("No cloud analyzer configured, using heuristic analysis")
		return fallback
	}
	if err := cloud.Probe(ctx); err != nil {
		logger.Warn("Cloud analysis unavailable, using heuristic analysis", zap.Error(err))
		return fallback
	}
	logger.Info("Cloud analysis available")
	return cloud
}

// riskLevel buckets a 0..1 risk score.
func riskLevel(score float64) string {
	switch {
	case score >= 0.7:
		return models.RiskHigh
	case score >= 0.4:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
