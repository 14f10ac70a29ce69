// Package httpapi exposes the search, voice search, and ingestion
// operations over a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	ingestuc "github.com/habita-labs/habita/internal/usecase/ingest"
	searchuc "github.com/habita-labs/habita/internal/usecase/search"
	voiceuc "github.com/habita-labs/habita/internal/usecase/voice"
)

// Searcher runs text retrieval.
type Searcher interface {
	SearchWithOptions(ctx context.Context, raw string, opts searchuc.Options) (searchuc.Result, error)
}

// VoiceSearcher runs audio retrieval.
type VoiceSearcher interface {
	Search(ctx context.Context, audio io.Reader, filename string) (voiceuc.Result, error)
}

// Ingester loads listings into the index.
type Ingester interface {
	Ingest(ctx context.Context, listings []domain.Listing) (ingestuc.Report, error)
}

// Pinger checks backend connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	search         Searcher
	voice          VoiceSearcher
	ingest         Ingester
	pinger         Pinger
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// Config holds server settings.
type Config struct {
	MaxUploadMB int
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher, voice VoiceSearcher, ingest Ingester, pinger Pinger,
	cfg Config, logger *zap.Logger,
) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 15
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:         search,
		voice:          voice,
		ingest:         ingest,
		pinger:         pinger,
		maxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		logger:         logger,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrListingNotFound, http.StatusNotFound, codeListingNotFound),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimensionMismatch),
		sentinelHandler(domain.ErrEmptyTranscription, http.StatusBadRequest, codeEmptyTranscription),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrTranscriptionFailed, http.StatusBadGateway, codeTranscriptionFailed),
		sentinelHandler(domain.ErrIndexNotReady, http.StatusServiceUnavailable, codeIndexNotReady),
	}
	return s
}

// Routes mounts all API endpoints on a fresh router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/search", s.handleSearch)
	r.Post("/api/voice/search", s.handleVoiceSearch)
	r.Post("/api/listings", s.handleIngest)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

type searchRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"topK,omitempty"`
	MinScore float64 `json:"minScore,omitempty"`
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.search.SearchWithOptions(r.Context(), req.Query, searchuc.Options{
		TopK:     req.TopK,
		MinScore: req.MinScore,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleVoiceSearch handles POST /api/voice/search. The audio clip arrives
// as the "audio" part of a multipart form.
func (s *Server) handleVoiceSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest,
			"audio upload too large or malformed: "+err.Error())
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, `multipart field "audio" is required`)
		return
	}
	defer file.Close()

	result, err := s.voice.Search(r.Context(), file, header.Filename)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleIngest handles POST /api/listings.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var listings []domain.Listing
	if err := json.NewDecoder(r.Body).Decode(&listings); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	for i := range listings {
		if err := validateListing(&listings[i]); err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
			return
		}
	}

	report, err := s.ingest.Ingest(r.Context(), listings)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"reason": "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
