// Package storage persists raw uploaded files. Two backends exist: S3
// object storage and a local filesystem fallback. One is bound at startup
// for the process lifetime.
package storage

import (
	"context"

	"go.uber.org/zap"
)

// ObjectStore stores raw document bytes. Put returns an opaque locator
// that Get accepts back; locators are stable across restarts.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) (locator string, err error)
	Get(ctx context.Context, locator string) ([]byte, error)
	Backend() string
}

// Select probes the S3 store once and binds the backend the process will
// use.
func Select(ctx context.Context, s3Store *S3Store, local *LocalStore, logger *zap.Logger) ObjectStore {
	if s3Store == nil {
		logger.Warn("No object storage configured, using local filesystem")
		return local
	}
	if err := s3Store.Probe(ctx); err != nil {
		logger.Warn("Object storage unreachable, using local filesystem", zap.Error(err))
		return local
	}
	logger.Info("Object storage available")
	return s3Store
}
