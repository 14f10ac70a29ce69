// Package hf is an embedding provider backed by the Hugging Face inference
// API feature-extraction pipeline.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/metrics"
)

const (
	providerName   = "hf"
	defaultBaseURL = "https://api-inference.huggingface.co"
)

// Embedder vectorizes text through the feature-extraction pipeline.
// Sentence-embedding models return one vector per input; plain transformer
// checkpoints return a token matrix per input, which gets mean-pooled.
type Embedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	logger     *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewEmbedder creates a Hugging Face embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
}

// Dimensions returns the vector size this provider produces.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

type extractionRequest struct {
	Inputs  []string       `json:"inputs"`
	Options requestOptions `json:"options"`
}

type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// BatchEmbed implements domain.BatchEmbedder. Token usage is not reported
// by the inference API, so the usage fields stay zero.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	body, err := json.Marshal(extractionRequest{
		Inputs:  texts,
		Options: requestOptions{WaitForModel: true},
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "transport").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("feature extraction request: %w: %w",
			err, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "read_body").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("read response: %w: %w",
			err, domain.ErrEmbeddingProviderError)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding API error %d: %s: %w",
			resp.StatusCode, truncate(raw, 256), domain.ErrEmbeddingProviderError)
	}

	embeddings, err := e.parseEmbeddings(raw, len(texts))
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "parse").Inc()
		return domain.BatchEmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(duration.Seconds())

	e.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Duration("duration", duration),
	)

	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

// parseEmbeddings decodes either vector-per-input or token-matrix-per-input
// responses. The shape is probed with json.RawMessage before full decoding.
func (e *Embedder) parseEmbeddings(raw []byte, want int) ([][]float32, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, fmt.Errorf("decode response: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(outer) != want {
		return nil, fmt.Errorf("response has %d entries for %d inputs: %w",
			len(outer), want, domain.ErrEmbeddingProviderError)
	}

	embeddings := make([][]float32, len(outer))
	for i, entry := range outer {
		vec, err := parseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("entry [%d]: %w", i, err)
		}
		if len(vec) != e.dimensions {
			return nil, fmt.Errorf("entry [%d] has %d dimensions, expected %d: %w",
				i, len(vec), e.dimensions, domain.ErrDimensionMismatch)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func parseEntry(entry json.RawMessage) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(entry, &vec); err == nil {
		return vec, nil
	}

	var matrix [][]float32
	if err := json.Unmarshal(entry, &matrix); err != nil {
		return nil, fmt.Errorf("unexpected embedding shape: %w", domain.ErrEmbeddingProviderError)
	}
	return MeanPool(matrix)
}

// MeanPool averages a token embedding matrix into a single sentence vector.
func MeanPool(matrix [][]float32) ([]float32, error) {
	if len(matrix) == 0 {
		return nil, fmt.Errorf("empty token matrix: %w", domain.ErrEmbeddingProviderError)
	}

	dim := len(matrix[0])
	pooled := make([]float64, dim)
	for _, row := range matrix {
		if len(row) != dim {
			return nil, fmt.Errorf("ragged token matrix: %w", domain.ErrEmbeddingProviderError)
		}
		for j, v := range row {
			pooled[j] += float64(v)
		}
	}

	vec := make([]float32, dim)
	n := float64(len(matrix))
	for j, sum := range pooled {
		vec[j] = float32(sum / n)
	}
	return vec, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
