// Package voice turns an audio clip into a listing search: transcribe with
// the first provider that succeeds, then feed the transcript to the
// retrieval engine.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/usecase/search"
)

// Searcher runs the text retrieval pipeline.
type Searcher interface {
	Search(ctx context.Context, raw string) (search.Result, error)
}

// Service chains transcription providers in front of the retrieval engine.
type Service struct {
	transcribers []domain.Transcriber
	searcher     Searcher
	logger       *zap.Logger
}

// New creates a voice search service. Transcribers are tried in order;
// the first one returning text wins.
func New(transcribers []domain.Transcriber, searcher Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{transcribers: transcribers, searcher: searcher, logger: logger}
}

// Result is a voice search outcome: the recognized text plus the retrieval
// result it produced.
type Result struct {
	Transcript string `json:"transcript"`
	search.Result
}

// Search transcribes the audio and runs the text search on the transcript.
func (s *Service) Search(ctx context.Context, audio io.Reader, filename string) (Result, error) {
	if len(s.transcribers) == 0 {
		return Result{}, fmt.Errorf("no transcription provider configured: %w", domain.ErrTranscriptionFailed)
	}

	// The audio stream is consumed per attempt, so buffer it once up front.
	data, err := io.ReadAll(audio)
	if err != nil {
		return Result{}, fmt.Errorf("read audio: %w", err)
	}

	transcript, err := s.transcribe(ctx, data, filename)
	if err != nil {
		return Result{}, err
	}

	searchResult, err := s.searcher.Search(ctx, transcript)
	if err != nil {
		return Result{}, err
	}
	return Result{Transcript: transcript, Result: searchResult}, nil
}

func (s *Service) transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	var lastErr error
	for i, tr := range s.transcribers {
		text, err := tr.Transcribe(ctx, bytes.NewReader(data), filename)
		if err == nil {
			return text, nil
		}
		lastErr = err

		// A clip with no recognizable speech is not a provider outage;
		// stop instead of asking the next backend.
		if errors.Is(err, domain.ErrEmptyTranscription) {
			return "", err
		}

		s.logger.Warn("transcription provider failed",
			zap.Int("provider_index", i),
			zap.Error(err),
		)
	}
	return "", fmt.Errorf("all providers failed: %w: %w", lastErr, domain.ErrTranscriptionFailed)
}
