// Package whisper provides speech-to-text transcription through the OpenAI
// Whisper API with a Hugging Face ASR endpoint as an alternative backend.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/metrics"
)

// OpenAITranscriber transcribes audio via the Whisper API.
type OpenAITranscriber struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAITranscriber creates a Whisper API transcriber.
func NewOpenAITranscriber(apiKey string, logger *zap.Logger) *OpenAITranscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAITranscriber{
		client: openai.NewClient(apiKey),
		logger: logger,
	}
}

// Transcribe implements domain.Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   audio,
		FilePath: filename,
	})
	if err != nil {
		metrics.TranscriptionRequestsTotal.WithLabelValues("openai", "error").Inc()
		return "", fmt.Errorf("whisper transcription: %w: %w", err, domain.ErrTranscriptionFailed)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		metrics.TranscriptionRequestsTotal.WithLabelValues("openai", "empty").Inc()
		return "", domain.ErrEmptyTranscription
	}

	metrics.TranscriptionRequestsTotal.WithLabelValues("openai", "success").Inc()
	t.logger.Debug("transcribed audio",
		zap.String("provider", "openai"),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

const defaultHFBaseURL = "https://api-inference.huggingface.co"

// HFTranscriber transcribes audio via a Hugging Face ASR model.
type HFTranscriber struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *zap.Logger
}

// HFConfig holds the Hugging Face ASR settings.
type HFConfig struct {
	APIKey     string
	BaseURL    string
	Model      string // e.g. openai/whisper-large-v3
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewHFTranscriber creates a Hugging Face ASR transcriber.
func NewHFTranscriber(cfg *HFConfig) *HFTranscriber {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultHFBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HFTranscriber{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     logger,
	}
}

// Transcribe implements domain.Transcriber. The raw audio bytes go straight
// to the model endpoint; the filename is only used for logging.
func (t *HFTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w: %w", err, domain.ErrTranscriptionFailed)
	}

	url := fmt.Sprintf("%s/models/%s", t.baseURL, t.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		metrics.TranscriptionRequestsTotal.WithLabelValues("hf", "error").Inc()
		return "", fmt.Errorf("asr request: %w: %w", err, domain.ErrTranscriptionFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.TranscriptionRequestsTotal.WithLabelValues("hf", "error").Inc()
		return "", fmt.Errorf("read response: %w: %w", err, domain.ErrTranscriptionFailed)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.TranscriptionRequestsTotal.WithLabelValues("hf", "error").Inc()
		return "", fmt.Errorf("asr API error %d: %s: %w",
			resp.StatusCode, string(body), domain.ErrTranscriptionFailed)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.TranscriptionRequestsTotal.WithLabelValues("hf", "error").Inc()
		return "", fmt.Errorf("decode response: %w: %w", err, domain.ErrTranscriptionFailed)
	}

	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		metrics.TranscriptionRequestsTotal.WithLabelValues("hf", "empty").Inc()
		return "", domain.ErrEmptyTranscription
	}

	metrics.TranscriptionRequestsTotal.WithLabelValues("hf", "success").Inc()
	t.logger.Debug("transcribed audio",
		zap.String("provider", "hf"),
		zap.String("file", filename),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}
