package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/habita-labs/habita/internal/domain"
	"github.com/habita-labs/habita/internal/domain/query"
	ingestuc "github.com/habita-labs/habita/internal/usecase/ingest"
	searchuc "github.com/habita-labs/habita/internal/usecase/search"
	voiceuc "github.com/habita-labs/habita/internal/usecase/voice"
)

type mockSearcher struct {
	result searchuc.Result
	err    error
	raw    string
	opts   searchuc.Options
}

func (m *mockSearcher) SearchWithOptions(_ context.Context, raw string, opts searchuc.Options) (searchuc.Result, error) {
	m.raw = raw
	m.opts = opts
	return m.result, m.err
}

type mockVoice struct {
	result   voiceuc.Result
	err      error
	filename string
	audio    []byte
}

func (m *mockVoice) Search(_ context.Context, audio io.Reader, filename string) (voiceuc.Result, error) {
	m.filename = filename
	m.audio, _ = io.ReadAll(audio)
	return m.result, m.err
}

type mockIngester struct {
	report   ingestuc.Report
	err      error
	listings []domain.Listing
}

func (m *mockIngester) Ingest(_ context.Context, listings []domain.Listing) (ingestuc.Report, error) {
	m.listings = listings
	return m.report, m.err
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type testServer struct {
	search *mockSearcher
	voice  *mockVoice
	ingest *mockIngester
	pinger *mockPinger
	srv    *Server
}

func newTestServer() *testServer {
	ts := &testServer{
		search: &mockSearcher{},
		voice:  &mockVoice{},
		ingest: &mockIngester{},
		pinger: &mockPinger{},
	}
	ts.srv = NewServer(ts.search, ts.voice, ts.ingest, ts.pinger, Config{MaxUploadMB: 1}, zap.NewNop())
	return ts
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- /api/search ---

func TestHandleSearch(t *testing.T) {
	ts := newTestServer()
	ts.search.result = searchuc.Result{
		Matches: []domain.Match{{ID: "l-1", Score: 0.9}},
		Tier:    "strong",
	}

	w := doJSON(t, ts.srv, http.MethodPost, "/api/search", `{"query": "alquiler en palermo"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ts.search.raw != "alquiler en palermo" {
		t.Errorf("searched %q", ts.search.raw)
	}
	var resp searchuc.Result
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tier != "strong" || len(resp.Matches) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleSearch_Overrides(t *testing.T) {
	ts := newTestServer()

	w := doJSON(t, ts.srv, http.MethodPost, "/api/search",
		`{"query": "casa en belgrano", "topK": 20, "minScore": 0.7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ts.search.opts.TopK != 20 {
		t.Errorf("topK = %d", ts.search.opts.TopK)
	}
	if ts.search.opts.MinScore != 0.7 {
		t.Errorf("minScore = %f", ts.search.opts.MinScore)
	}
}

func TestHandleSearch_BadBody(t *testing.T) {
	ts := newTestServer()
	w := doJSON(t, ts.srv, http.MethodPost, "/api/search", `{`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleSearch_InvalidQuery(t *testing.T) {
	ts := newTestServer()
	ts.search.err = &query.ValidationError{Violations: []string{"text: minLength 2"}}

	w := doJSON(t, ts.srv, http.MethodPost, "/api/search", `{"query": "a"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Code != codeInvalidQuery {
		t.Errorf("code = %s", resp.Code)
	}
	if len(resp.Details) != 1 || !strings.Contains(resp.Details[0], "minLength") {
		t.Errorf("details = %v", resp.Details)
	}
}

func TestHandleSearch_ProviderDown(t *testing.T) {
	ts := newTestServer()
	ts.search.err = domain.ErrEmbeddingProviderError

	w := doJSON(t, ts.srv, http.MethodPost, "/api/search", `{"query": "alquiler"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != codeEmbeddingProviderError {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestHandleSearch_InternalError(t *testing.T) {
	ts := newTestServer()
	ts.search.err = errors.New("redis down")

	w := doJSON(t, ts.srv, http.MethodPost, "/api/search", `{"query": "alquiler"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	// Raw internals never reach the client.
	if strings.Contains(w.Body.String(), "redis") {
		t.Errorf("leaked internals: %s", w.Body.String())
	}
}

// --- /api/voice/search ---

func audioRequest(t *testing.T, field, filename string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/voice/search", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleVoiceSearch(t *testing.T) {
	ts := newTestServer()
	ts.voice.result = voiceuc.Result{Transcript: "alquiler en palermo"}

	w := httptest.NewRecorder()
	ts.srv.Routes().ServeHTTP(w, audioRequest(t, "audio", "clip.webm", []byte("fake-opus")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ts.voice.filename != "clip.webm" {
		t.Errorf("filename = %q", ts.voice.filename)
	}
	if string(ts.voice.audio) != "fake-opus" {
		t.Errorf("audio = %q", ts.voice.audio)
	}
}

func TestHandleVoiceSearch_MissingPart(t *testing.T) {
	ts := newTestServer()
	w := httptest.NewRecorder()
	ts.srv.Routes().ServeHTTP(w, audioRequest(t, "file", "clip.webm", []byte("x")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleVoiceSearch_TranscriptionFailed(t *testing.T) {
	ts := newTestServer()
	ts.voice.err = domain.ErrTranscriptionFailed

	w := httptest.NewRecorder()
	ts.srv.Routes().ServeHTTP(w, audioRequest(t, "audio", "clip.webm", []byte("x")))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestHandleVoiceSearch_EmptyTranscription(t *testing.T) {
	ts := newTestServer()
	ts.voice.err = domain.ErrEmptyTranscription

	w := httptest.NewRecorder()
	ts.srv.Routes().ServeHTTP(w, audioRequest(t, "audio", "clip.webm", []byte("x")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

// --- /api/listings ---

func TestHandleIngest(t *testing.T) {
	ts := newTestServer()
	ts.ingest.report = ingestuc.Report{Ingested: 1, IDs: []string{"l-1"}}

	body := `[{"title": "depto", "operation": "rent", "price": 250000}]`
	w := doJSON(t, ts.srv, http.MethodPost, "/api/listings", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(ts.ingest.listings) != 1 || ts.ingest.listings[0].Title != "depto" {
		t.Errorf("listings = %+v", ts.ingest.listings)
	}
}

func TestHandleIngest_InvalidOperation(t *testing.T) {
	ts := newTestServer()
	body := `[{"title": "depto", "operation": "lease", "price": 1}]`
	w := doJSON(t, ts.srv, http.MethodPost, "/api/listings", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if ts.ingest.listings != nil {
		t.Error("ingest should not run on validation failure")
	}
}

func TestHandleIngest_IndexNotReady(t *testing.T) {
	ts := newTestServer()
	ts.ingest.err = domain.ErrIndexNotReady

	body := `[{"title": "depto", "operation": "rent", "price": 1}]`
	w := doJSON(t, ts.srv, http.MethodPost, "/api/listings", body)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

// --- /health ---

func TestHandleHealth(t *testing.T) {
	ts := newTestServer()
	w := doJSON(t, ts.srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	ts := newTestServer()
	ts.pinger.err = errors.New("no route to host")
	w := doJSON(t, ts.srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}
