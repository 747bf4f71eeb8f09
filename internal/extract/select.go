package extract

import (
	"context"

	"go.uber.org/zap"
)

// Select probes the cloud extractor once and binds the implementation the
// process will use. The choice never changes after startup: a mid-batch
// switch would make two documents in the same batch incomparable.
func Select(ctx context.Context, cloud *CloudExtractor, fallback *FallbackExtractor, logger *zap.Logger) Extractor {
	if cloud == nil {
		logger.Warn("No cloud extractor configured, using local heuristics")
		return fallback
	}
	if err := cloud.Probe(ctx); err != nil {
		logger.Warn("Cloud extraction unavailable, using local heuristics", zap.Error(err))
		return fallback
	}
	logger.Info("Cloud extraction available")
	return cloud
}
