package domain

import "errors"

var (
	// ErrInvalidQuery signals a parsed query failing schema validation.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrListingNotFound signals a missing listing key.
	ErrListingNotFound = errors.New("listing not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrTranscriptionFailed signals that no transcription provider produced text.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrEmptyTranscription signals a provider returning no speech text.
	ErrEmptyTranscription = errors.New("empty transcription")
	// ErrIndexNotReady signals that the listing index did not become ready in time.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrDimensionMismatch signals a provider/index vector dimension mismatch.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
