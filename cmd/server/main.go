package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/lendfast/mortgage-intake/internal/analyze"
	"github.com/lendfast/mortgage-intake/internal/config"
	"github.com/lendfast/mortgage-intake/internal/export"
	"github.com/lendfast/mortgage-intake/internal/extract"
	"github.com/lendfast/mortgage-intake/internal/persistence"
	"github.com/lendfast/mortgage-intake/internal/pipeline"
	"github.com/lendfast/mortgage-intake/internal/server"
	"github.com/lendfast/mortgage-intake/internal/storage"
	"github.com/lendfast/mortgage-intake/internal/validate"
	"github.com/lendfast/mortgage-intake/pkg/database"
	"github.com/lendfast/mortgage-intake/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Credentials live in .env during local development.
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting mortgage document intake service",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Pipeline.Workers))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Each tier probes its cloud backend once here; the binding holds for
	// the life of the process.
	extractor := buildExtractor(ctx, cfg, logger)
	analyzer := buildAnalyzer(ctx, cfg, logger)
	gateway := buildGateway(ctx, cfg, db, logger)
	store := buildStore(ctx, cfg, logger)

	coordinator := pipeline.NewCoordinator(
		extractor,
		validate.New(),
		analyzer,
		cfg.Pipeline.Workers,
		cfg.Pipeline.AnalyzeInvalidDocuments,
		logger,
	)

	srv := server.NewServer(
		cfg.Server,
		coordinator,
		gateway,
		store,
		export.NewReportExporter(logger),
		cfg.Pipeline.MaxFileSize,
		logger,
	)

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Service stopped")
}

func buildExtractor(ctx context.Context, cfg *config.Config, logger *zap.Logger) extract.Extractor {
	fallback := extract.NewFallbackExtractor(cfg.Pipeline.MaxFileSize, logger)

	var cloud *extract.CloudExtractor
	if cfg.OpenAI.APIKey != "" {
		cloud = extract.NewCloudExtractor(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.BaseURL,
			cfg.OpenAI.Model,
			cfg.Pipeline.MaxFileSize,
			logger,
		)
	}
	return extract.Select(ctx, cloud, fallback, logger)
}

func buildAnalyzer(ctx context.Context, cfg *config.Config, logger *zap.Logger) analyze.Analyzer {
	fallback := analyze.NewFallbackAnalyzer(logger)

	var cloud *analyze.CloudAnalyzer
	if cfg.OpenAI.APIKey != "" {
		cloud = analyze.NewCloudAnalyzer(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.BaseURL,
			cfg.OpenAI.Model,
			fallback,
			logger,
		)
	}
	return analyze.Select(ctx, cloud, fallback, logger)
}

func buildGateway(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) persistence.Gateway {
	sqlite := persistence.NewSQLiteGateway(db, logger)

	var elastic *persistence.ElasticGateway
	if len(cfg.Elasticsearch.Addresses) > 0 {
		var err error
		elastic, err = persistence.NewElasticGateway(persistence.ElasticConfig{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		}, logger)
		if err != nil {
			logger.Warn("Failed to construct document database client", zap.Error(err))
			elastic = nil
		}
	}
	return persistence.Select(ctx, elastic, sqlite, logger)
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.ObjectStore {
	local := storage.NewLocalStore(cfg.Storage.LocalDir, logger)

	var s3Store *storage.S3Store
	if cfg.Storage.S3Bucket != "" {
		var err error
		s3Store, err = storage.NewS3Store(ctx, cfg.Storage.S3Region, cfg.Storage.S3Bucket, logger)
		if err != nil {
			logger.Warn("Failed to construct object storage client", zap.Error(err))
			s3Store = nil
		}
	}
	return storage.Select(ctx, s3Store, local, logger)
}
