package domain

import (
	"context"
	"io"
)

// Transcriber converts spoken audio into text. Implementations return
// ErrEmptyTranscription when the provider recognizes no speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}
