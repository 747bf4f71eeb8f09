// Command check-backends probes each configured cloud backend and reports
// whether the service would bind it or fall back to the local tier.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/analyze"
	"github.com/lendfast/mortgage-intake/internal/config"
	"github.com/lendfast/mortgage-intake/internal/extract"
	"github.com/lendfast/mortgage-intake/internal/persistence"
	"github.com/lendfast/mortgage-intake/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	timeout := flag.Duration("timeout", 0, "probe timeout (defaults to openai.timeout)")
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()

	probeTimeout := *timeout
	if probeTimeout <= 0 {
		probeTimeout = cfg.OpenAI.Timeout
	}
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	fmt.Println("=== Backend Connectivity Check ===")
	fmt.Println()

	healthy := true
	healthy = checkOpenAI(ctx, cfg, logger) && healthy
	healthy = checkElasticsearch(ctx, cfg, logger) && healthy
	healthy = checkS3(ctx, cfg, logger) && healthy

	fmt.Println()
	if healthy {
		fmt.Println("All configured cloud backends reachable.")
		return
	}
	fmt.Println("Some cloud backends unreachable; the service would run on local fallbacks.")
	os.Exit(1)
}

func checkOpenAI(ctx context.Context, cfg *config.Config, logger *zap.Logger) bool {
	if cfg.OpenAI.APIKey == "" {
		fmt.Println("- openai: not configured (OPENAI_API_KEY unset), extraction and analysis use local heuristics")
		return true
	}

	extractor := extract.NewCloudExtractor(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.Pipeline.MaxFileSize,
		logger,
	)
	if err := extractor.Probe(ctx); err != nil {
		fmt.Printf("✗ openai: unreachable: %v\n", err)
		return false
	}

	analyzer := analyze.NewCloudAnalyzer(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		analyze.NewFallbackAnalyzer(logger),
		logger,
	)
	if err := analyzer.Probe(ctx); err != nil {
		fmt.Printf("✗ openai: model %s not usable: %v\n", cfg.OpenAI.Model, err)
		return false
	}

	fmt.Printf("✓ openai: reachable (model %s)\n", cfg.OpenAI.Model)
	return true
}

func checkElasticsearch(ctx context.Context, cfg *config.Config, logger *zap.Logger) bool {
	if len(cfg.Elasticsearch.Addresses) == 0 {
		fmt.Println("- elasticsearch: not configured, reports persist to local SQLite")
		return true
	}

	gateway, err := persistence.NewElasticGateway(persistence.ElasticConfig{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	}, logger)
	if err != nil {
		fmt.Printf("✗ elasticsearch: client construction failed: %v\n", err)
		return false
	}
	if err := gateway.Probe(ctx); err != nil {
		fmt.Printf("✗ elasticsearch: unreachable: %v\n", err)
		return false
	}

	fmt.Printf("✓ elasticsearch: reachable (%v)\n", cfg.Elasticsearch.Addresses)
	return true
}

func checkS3(ctx context.Context, cfg *config.Config, logger *zap.Logger) bool {
	if cfg.Storage.S3Bucket == "" {
		fmt.Printf("- s3: not configured, uploads persist under %s\n", cfg.Storage.LocalDir)
		return true
	}

	store, err := storage.NewS3Store(ctx, cfg.Storage.S3Region, cfg.Storage.S3Bucket, logger)
	if err != nil {
		fmt.Printf("✗ s3: client construction failed: %v\n", err)
		return false
	}
	if err := store.Probe(ctx); err != nil {
		fmt.Printf("✗ s3: bucket %s unreachable: %v\n", cfg.Storage.S3Bucket, err)
		return false
	}

	fmt.Printf("✓ s3: bucket %s reachable\n", cfg.Storage.S3Bucket)
	return true
}
