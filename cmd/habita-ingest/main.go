// Command habita-ingest loads a JSON file of listings into the vector
// index without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/config"
	dbRedis "github.com/habita-labs/habita/internal/db/redis"
	"github.com/habita-labs/habita/internal/domain"
	logpkg "github.com/habita-labs/habita/internal/logger"
	"github.com/habita-labs/habita/internal/metrics"
	listingrepo "github.com/habita-labs/habita/internal/repository/listing"
	hfEmb "github.com/habita-labs/habita/internal/transport/hf"
	openaiEmb "github.com/habita-labs/habita/internal/transport/openai"
	embeddinguc "github.com/habita-labs/habita/internal/usecase/embedding"
	ingestuc "github.com/habita-labs/habita/internal/usecase/ingest"
)

func main() {
	file := flag.String("file", "", "path to a JSON array of listings")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	recreate := flag.Bool("recreate", false, "drop and rebuild the listing index before ingesting")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: habita-ingest -file listings.json")
		os.Exit(2)
	}

	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	listings, err := readListings(*file)
	if err != nil {
		logger.Fatal("Failed to read listings file", zap.Error(err))
	}
	logger.Info("Loaded listings file",
		zap.String("file", *file),
		zap.Int("count", len(listings)),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}

	metrics.RegisterEmbeddingMetrics()

	provider, provCfg := buildProvider(cfg, logger)

	embedSvc := embeddinguc.New(provider, embeddinguc.Config{
		Provider:   cfg.Embedding.Provider,
		BatchSize:  cfg.Embedding.BatchSize,
		BatchDelay: time.Duration(cfg.Embedding.BatchDelayMS) * time.Millisecond,
		MaxRetries: cfg.Embedding.MaxRetries,
	}, logger)

	repo := listingrepo.New(store, listingrepo.Config{
		KeyPrefix:       cfg.Index.KeyPrefix,
		VectorDim:       provCfg.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
		ReadyTimeout:    time.Duration(cfg.Index.ReadyTimeoutSec) * time.Second,
	})

	if *recreate {
		if err := repo.DropIndex(ctx); err != nil {
			logger.Fatal("Failed to drop listing index", zap.Error(err))
		}
		logger.Info("Dropped listing index", zap.String("index", repo.IndexName()))
	}

	report, err := ingestuc.New(repo, embedSvc, logger).Ingest(ctx, listings)
	if err != nil {
		logger.Fatal("Ingestion failed", zap.Error(err))
	}

	logger.Info("Ingestion complete", zap.Int("ingested", report.Ingested))
}

func readListings(path string) ([]domain.Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var listings []domain.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return listings, nil
}

func buildProvider(cfg config.Config, logger *zap.Logger) (domain.BatchEmbedder, config.ProviderConfig) {
	provCfg := cfg.ActiveProvider()

	switch cfg.Embedding.Provider {
	case "openai":
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      provCfg.Model,
			Dimensions: provCfg.Dimensions,
			Logger:     logger,
		}), provCfg
	default:
		return hfEmb.NewEmbedder(&hfEmb.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      provCfg.Model,
			Dimensions: provCfg.Dimensions,
			Logger:     logger,
		}), provCfg
	}
}
