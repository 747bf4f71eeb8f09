package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const localScheme = "file://"

// LocalStore keeps uploaded files under a base directory. It is the
// fallback tier when object storage is unreachable.
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalStore creates a filesystem store rooted at baseDir.
func NewLocalStore(baseDir string, logger *zap.Logger) *LocalStore {
	return &LocalStore{baseDir: baseDir, logger: logger}
}

// Backend names the bound storage backend.
func (s *LocalStore) Backend() string { return "local" }

// Put writes the file under the base directory and returns a file://
// locator.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create storage directories",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File stored",
		zap.String("key", key),
		zap.Int("size", len(data)))
	return localScheme + fullPath, nil
}

// Get reads a file back from a file:// locator.
func (s *LocalStore) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(locator, localScheme) {
		return nil, fmt.Errorf("not a local locator: %s", locator)
	}
	fullPath := strings.TrimPrefix(locator, localScheme)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// validatePath rejects keys that escape the base directory.
func (s *LocalStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}
