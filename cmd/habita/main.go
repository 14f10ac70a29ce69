package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/config"
	dbRedis "github.com/habita-labs/habita/internal/db/redis"
	"github.com/habita-labs/habita/internal/domain"
	logpkg "github.com/habita-labs/habita/internal/logger"
	"github.com/habita-labs/habita/internal/metrics"
	"github.com/habita-labs/habita/internal/repository/embcache"
	listingrepo "github.com/habita-labs/habita/internal/repository/listing"
	searchrepo "github.com/habita-labs/habita/internal/repository/search"
	hfEmb "github.com/habita-labs/habita/internal/transport/hf"
	"github.com/habita-labs/habita/internal/transport/httpapi"
	openaiEmb "github.com/habita-labs/habita/internal/transport/openai"
	"github.com/habita-labs/habita/internal/transport/whisper"
	embeddinguc "github.com/habita-labs/habita/internal/usecase/embedding"
	ingestuc "github.com/habita-labs/habita/internal/usecase/ingest"
	searchuc "github.com/habita-labs/habita/internal/usecase/search"
	voiceuc "github.com/habita-labs/habita/internal/usecase/voice"
	"github.com/habita-labs/habita/internal/version"
)

func main() {
	// .env is optional; real deployments use the environment directly.
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

	logger.Info("Starting habita API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	provider, provCfg := buildProvider(cfg, logger)

	embedSvc := embeddinguc.New(provider, embeddinguc.Config{
		Provider:   cfg.Embedding.Provider,
		BatchSize:  cfg.Embedding.BatchSize,
		BatchDelay: time.Duration(cfg.Embedding.BatchDelayMS) * time.Millisecond,
		MaxRetries: cfg.Embedding.MaxRetries,
	}, logger)

	listings := listingrepo.New(store, listingrepo.Config{
		KeyPrefix:       cfg.Index.KeyPrefix,
		VectorDim:       provCfg.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
		ReadyTimeout:    time.Duration(cfg.Index.ReadyTimeoutSec) * time.Second,
	})
	if err := listings.EnsureIndex(ctx); err != nil {
		logger.Fatal("Listing index not ready", zap.Error(err))
	}
	logger.Info("Listing index ready", zap.String("index", listings.IndexName()))

	searches := searchrepo.New(store, listings.IndexName(), cfg.Index.KeyPrefix)

	var queryEmbedder searchuc.Embedder = embedSvc
	if cfg.Embedding.CacheTTLSec > 0 {
		queryEmbedder = embcache.New(embedSvc, store, embcache.Config{
			KeyPrefix: cfg.Index.KeyPrefix,
			Model:     provCfg.Model,
			TTL:       time.Duration(cfg.Embedding.CacheTTLSec) * time.Second,
		}, logger)
		logger.Info("Query embedding cache enabled",
			zap.Int("ttl_sec", cfg.Embedding.CacheTTLSec))
	}

	searchSvc := searchuc.New(searches, queryEmbedder, searchuc.Config{
		TopK:       cfg.Search.TopK,
		MinScore:   cfg.Search.MinScore,
		MaxResults: cfg.Search.MaxResults,
	}, logger)
	ingestSvc := ingestuc.New(listings, embedSvc, logger)
	voiceSvc := voiceuc.New(buildTranscribers(cfg, logger), searchSvc, logger)

	server := httpapi.NewServer(searchSvc, voiceSvc, ingestSvc, store, httpapi.Config{
		MaxUploadMB: cfg.Transcription.MaxUploadMB,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildProvider selects the embedding backend from config.
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

// buildTranscribers assembles the transcription chain: Whisper API first
// when a key is configured, Hugging Face ASR as fallback.
func buildTranscribers(cfg config.Config, logger *zap.Logger) []domain.Transcriber {
	var chain []domain.Transcriber
	if cfg.Transcription.OpenAIAPIKey != "" {
		chain = append(chain, whisper.NewOpenAITranscriber(cfg.Transcription.OpenAIAPIKey, logger))
	}
	if cfg.Transcription.HFAPIKey != "" {
		chain = append(chain, whisper.NewHFTranscriber(&whisper.HFConfig{
			APIKey: cfg.Transcription.HFAPIKey,
			Model:  cfg.Transcription.HFModel,
			Logger: logger,
		}))
	}
	return chain
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
