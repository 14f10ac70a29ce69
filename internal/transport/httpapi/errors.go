package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/domain/query"
)

// Stable machine-readable error codes.
const (
	codeBadRequest             = "bad_request"
	codeValidationFailed       = "validation_failed"
	codeInvalidQuery           = "invalid_query"
	codeListingNotFound        = "listing_not_found"
	codeDimensionMismatch      = "vector_dim_mismatch"
	codeEmptyTranscription     = "empty_transcription"
	codeEmbeddingProviderError = "embedding_provider_error"
	codeTranscriptionFailed    = "transcription_failed"
	codeIndexNotReady          = "index_not_ready"
	codeInternalError          = "internal_error"
)

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// validationHandler surfaces the individual schema violations for invalid
// queries. It must run before the plain ErrInvalidQuery handler.
func validationHandler(w http.ResponseWriter, err error, msg string) bool {
	var ve *query.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    codeInvalidQuery,
		Message: msg,
		Details: ve.Violations,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrListingNotFound,
		domain.ErrDimensionMismatch,
		domain.ErrEmptyTranscription,
		domain.ErrEmbeddingProviderError,
		domain.ErrTranscriptionFailed,
		domain.ErrIndexNotReady,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// validateListing rejects listings the index cannot represent.
func validateListing(l *domain.Listing) error {
	if l.Title == "" {
		return errors.New("listing title is required")
	}
	switch l.Operation {
	case domain.OperationRent, domain.OperationSale, domain.OperationTemp:
	default:
		return fmt.Errorf("listing operation must be rent, sale, or temp, got %q", l.Operation)
	}
	if l.Price < 0 {
		return errors.New("listing price must not be negative")
	}
	return nil
}
