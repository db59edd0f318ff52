package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"gocloud.dev/blob/memblob"

	"github.com/jobrunner/regiond/internal/adapters/offlinedb"
	"github.com/jobrunner/regiond/internal/adapters/tiles"
	"github.com/jobrunner/regiond/internal/application"
	"github.com/jobrunner/regiond/internal/config"
	"github.com/jobrunner/regiond/internal/domain"
	"github.com/jobrunner/regiond/internal/ports/output"
	mocks "github.com/jobrunner/regiond/internal/ports/output/mocks"
)

const berlinRequest = `{
	"definition": {
		"bounds": [[52.3, 13.0], [52.7, 13.8]],
		"mapStyleUrl": "mapbox://styles/test/streets",
		"minZoom": 0,
		"maxZoom": 1
	},
	"metadata": {"name": "Berlin"}
}`

// gatedSource holds every fetch until gate is closed.
type gatedSource struct {
	gate chan struct{}
}

func (s *gatedSource) Fetch(ctx context.Context, _ string) ([]byte, error) {
	select {
	case <-s.gate:
		return []byte("tile"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *gatedSource) Name() string { return "gated" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T, source output.TileSource) *offlinedb.Engine {
	t.Helper()
	e, err := offlinedb.Open(context.Background(), offlinedb.Config{
		Path: filepath.Join(t.TempDir(), "offline.db"),
	}, source, testLogger())
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// memEngine returns an engine whose tile source is an empty in-memory bucket,
// so every download completes immediately.
func memEngine(t *testing.T) *offlinedb.Engine {
	t.Helper()
	return newTestEngine(t, tiles.NewBucketSource(memblob.OpenBucket(nil), "mem://", ""))
}

func newTestServer(engine output.OfflineEngine) *Server {
	logger := testLogger()

	// Create real services on top of the given engine
	registry := application.NewDownloadRegistry(&output.NoOpMetrics{}, logger)
	regions := application.NewRegionService(registry, engine, &output.NoOpMetrics{}, logger, application.RegionServiceConfig{})
	health := application.NewHealthService(engine, registry)

	return NewServer(
		config.ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		regions,
		health,
		logger,
	)
}

func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var resp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error body %q: %v", rr.Body.String(), err)
	}
	return resp.Code, resp.Message
}

func startRegion(t *testing.T, srv *Server) int64 {
	t.Helper()
	rr := serve(srv, http.MethodPost, "/api/v1/regions", berlinRequest)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp struct {
		ID         *int64         `json:"id"`
		Definition map[string]any `json:"definition"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.ID == nil || *resp.ID < 0 {
		t.Fatalf("response has no valid id: %s", rr.Body.String())
	}
	if resp.Metadata["name"] != "Berlin" {
		t.Errorf("metadata = %v, want name Berlin", resp.Metadata)
	}
	return *resp.ID
}

func waitForState(t *testing.T, srv *Server, id int64, want domain.DownloadState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rr := serve(srv, http.MethodGet, fmt.Sprintf("/api/v1/regions/%d", id), "")
		var resp struct {
			State  domain.DownloadState `json:"state"`
			Active bool                 `json:"active"`
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &resp)
		if rr.Code == http.StatusOK && resp.State == want && !resp.Active {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("region %d did not reach %q: %d %s", id, want, rr.Code, rr.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(memEngine(t))

	rr := serve(srv, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want %q", resp["status"], "ok")
	}
	if resp["persisted_regions"] != float64(0) {
		t.Errorf("persisted_regions = %v, want 0", resp["persisted_regions"])
	}
}

func TestHandleHealthUnavailableEngine(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockOfflineEngine(ctrl)
	engine.EXPECT().Ping(gomock.Any()).Return(domain.ErrEngineClosed).AnyTimes()

	srv := newTestServer(engine)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rr := serve(srv, http.MethodGet, path, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want %d", path, rr.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestHandleLivenessAndReadiness(t *testing.T) {
	srv := newTestServer(memEngine(t))

	for _, path := range []string{"/health/live", "/health/ready"} {
		rr := serve(srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestHandleListRegionsEmpty(t *testing.T) {
	srv := newTestServer(memEngine(t))

	rr := serve(srv, http.MethodGet, "/api/v1/regions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Body.String(); got != "[]" {
		t.Errorf("body = %q, want %q", got, "[]")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRegionLifecycle(t *testing.T) {
	srv := newTestServer(memEngine(t))

	id := startRegion(t, srv)
	waitForState(t, srv, id, domain.StateComplete)

	rr := serve(srv, http.MethodGet, fmt.Sprintf("/api/v1/regions/%d", id), "")
	var status struct {
		Finished bool `json:"finished"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to unmarshal status: %v", err)
	}
	if !status.Finished {
		t.Errorf("completed region not reported finished: %s", rr.Body.String())
	}

	rr = serve(srv, http.MethodGet, "/api/v1/regions", "")
	var listed []struct {
		ID       int64          `json:"id"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to unmarshal listing: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != id || listed[0].Metadata["name"] != "Berlin" {
		t.Errorf("listing = %+v, want region %d", listed, id)
	}

	rr = serve(srv, http.MethodDelete, fmt.Sprintf("/api/v1/regions/%d", id), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "null" {
		t.Errorf("delete body = %q, want null", got)
	}

	rr = serve(srv, http.MethodGet, fmt.Sprintf("/api/v1/regions/%d", id), "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if code, _ := decodeError(t, rr); code != domain.CodeRegionStatus {
		t.Errorf("code = %q, want %q", code, domain.CodeRegionStatus)
	}

	rr = serve(srv, http.MethodDelete, fmt.Sprintf("/api/v1/regions/%d", id), "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	code, message := decodeError(t, rr)
	if code != domain.CodeDeleteRegion {
		t.Errorf("code = %q, want %q", code, domain.CodeDeleteRegion)
	}
	if want := fmt.Sprintf("there is no region with id %d", id); message != want {
		t.Errorf("message = %q, want %q", message, want)
	}
}

func TestHandleStartDownloadRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(memEngine(t))

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{"},
		{name: "missing definition", body: `{"metadata": {}}`},
		{name: "bad bounds shape", body: `{"definition": {"bounds": [[1, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
		{name: "zoom out of order", body: `{"definition": {"bounds": [[1, 2], [3, 4]], "mapStyleUrl": "s", "minZoom": 5, "maxZoom": 1}}`},
		{name: "missing style", body: `{"definition": {"bounds": [[1, 2], [3, 4]], "mapStyleUrl": "", "minZoom": 0, "maxZoom": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(srv, http.MethodPost, "/api/v1/regions", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
			if code, _ := decodeError(t, rr); code != domain.CodeDownloadRegion {
				t.Errorf("code = %q, want %q", code, domain.CodeDownloadRegion)
			}
		})
	}

	rr := serve(srv, http.MethodGet, "/api/v1/regions", "")
	if rr.Body.String() != "[]" {
		t.Errorf("rejected requests left records behind: %s", rr.Body.String())
	}
}

func TestHandleStartDownloadBodyLimit(t *testing.T) {
	srv := newTestServer(memEngine(t))
	srv.config.MaxBodyBytes = 16

	rr := serve(srv, http.MethodPost, "/api/v1/regions", berlinRequest)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleInvalidRegionID(t *testing.T) {
	srv := newTestServer(memEngine(t))

	tests := []struct {
		method string
		path   string
		code   string
	}{
		{method: http.MethodGet, path: "/api/v1/regions/abc", code: domain.CodeRegionStatus},
		{method: http.MethodDelete, path: "/api/v1/regions/-4", code: domain.CodeDeleteRegion},
		{method: http.MethodGet, path: "/api/v1/downloads/x/events", code: domain.CodeDownloadEvents},
		{method: http.MethodDelete, path: "/api/v1/downloads/1.5", code: domain.CodeReleaseHandle},
	}

	for _, tt := range tests {
		rr := serve(srv, tt.method, tt.path, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rr.Code, http.StatusBadRequest)
			continue
		}
		if code, _ := decodeError(t, rr); code != tt.code {
			t.Errorf("%s %s code = %q, want %q", tt.method, tt.path, code, tt.code)
		}
	}
}

func TestHandleEngineFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mocks.NewMockOfflineEngine(ctrl)
	engine.EXPECT().ListRecords(gomock.Any()).Return(nil, errors.New("disk I/O error")).AnyTimes()

	srv := newTestServer(engine)

	tests := []struct {
		method string
		path   string
		body   string
		code   string
	}{
		{method: http.MethodGet, path: "/api/v1/regions", code: domain.CodeRegionList},
		{method: http.MethodGet, path: "/api/v1/regions/7", code: domain.CodeRegionStatus},
		{method: http.MethodDelete, path: "/api/v1/regions/7", code: domain.CodeDeleteRegion},
		{method: http.MethodPost, path: "/api/v1/regions", body: berlinRequest, code: domain.CodeDownloadRegion},
	}

	for _, tt := range tests {
		rr := serve(srv, tt.method, tt.path, tt.body)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rr.Code, http.StatusInternalServerError)
			continue
		}
		code, message := decodeError(t, rr)
		if code != tt.code {
			t.Errorf("%s %s code = %q, want %q", tt.method, tt.path, code, tt.code)
		}
		if !strings.Contains(message, "disk I/O error") {
			t.Errorf("%s %s message = %q, want engine message", tt.method, tt.path, message)
		}
	}
}

func TestHandleDownloadEvents(t *testing.T) {
	source := &gatedSource{gate: make(chan struct{})}
	srv := newTestServer(newTestEngine(t, source))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/regions", "application/json", bytes.NewBufferString(berlinRequest))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	downloads := serve(srv, http.MethodGet, "/api/v1/downloads", "")
	if !strings.Contains(downloads.Body.String(), `"count":1`) {
		t.Errorf("downloads = %s, want one entry", downloads.Body.String())
	}

	stream, err := http.Get(fmt.Sprintf("%s/api/v1/downloads/%d/events", ts.URL, created.ID))
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}
	defer func() { _ = stream.Body.Close() }()

	if stream.StatusCode != http.StatusOK {
		t.Fatalf("events status = %d, want %d", stream.StatusCode, http.StatusOK)
	}
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	// The handler has subscribed once headers arrive.
	close(source.gate)

	body, err := io.ReadAll(stream.Body)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	text := string(body)
	if !strings.Contains(text, "event: complete\n") {
		t.Errorf("stream has no complete event:\n%s", text)
	}
	if strings.Index(text, "event: complete") < strings.LastIndex(text, "event: progress") {
		t.Errorf("progress event after terminal event:\n%s", text)
	}

	// The terminal event releases the handle.
	var rr *httptest.ResponseRecorder
	deadline := time.Now().Add(5 * time.Second)
	for {
		rr = serve(srv, http.MethodGet, fmt.Sprintf("/api/v1/downloads/%d/events", created.ID), "")
		if rr.Code == http.StatusNotFound || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rr.Code != http.StatusNotFound {
		t.Fatalf("events after completion status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if code, _ := decodeError(t, rr); code != domain.CodeDownloadEvents {
		t.Errorf("code = %q, want %q", code, domain.CodeDownloadEvents)
	}
}

func TestHandleReleaseDownload(t *testing.T) {
	source := &gatedSource{gate: make(chan struct{})}
	srv := newTestServer(newTestEngine(t, source))
	defer close(source.gate)

	id := startRegion(t, srv)

	rr := serve(srv, http.MethodGet, fmt.Sprintf("/api/v1/regions/%d", id), "")
	if !strings.Contains(rr.Body.String(), `"finished":false`) {
		t.Errorf("running region reported finished: %s", rr.Body.String())
	}

	rr = serve(srv, http.MethodGet, "/api/v1/downloads", "")
	var listing struct {
		Downloads []struct {
			ID     int64 `json:"id"`
			Region struct {
				ID       int64          `json:"id"`
				Metadata map[string]any `json:"metadata"`
			} `json:"region"`
		} `json:"downloads"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listing); err != nil {
		t.Fatalf("failed to unmarshal downloads: %v", err)
	}
	if len(listing.Downloads) != 1 {
		t.Fatalf("downloads = %s, want one entry", rr.Body.String())
	}
	if got := listing.Downloads[0]; got.ID != id || got.Region.ID != id || got.Region.Metadata["name"] != "Berlin" {
		t.Errorf("download entry = %+v, want region %d with its metadata", got, id)
	}

	rr = serve(srv, http.MethodDelete, fmt.Sprintf("/api/v1/downloads/%d", id), "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = serve(srv, http.MethodGet, "/api/v1/downloads", "")
	if !strings.Contains(rr.Body.String(), `"count":0`) {
		t.Errorf("downloads after release = %s", rr.Body.String())
	}

	// Releasing again is a no-op.
	rr = serve(srv, http.MethodDelete, fmt.Sprintf("/api/v1/downloads/%d", id), "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("second release status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestHandleOpenAPI(t *testing.T) {
	srv := newTestServer(memEngine(t))

	rr := serve(srv, http.MethodGet, "/openapi.json", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("openapi.json is not JSON: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/api/v1/regions", "/api/v1/regions/{id}", "/api/v1/downloads/{id}/events"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi.json lacks path %s", p)
		}
	}
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(memEngine(t))

	rr := serve(srv, http.MethodGet, "/health/live", "")
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("response has no request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want propagated %q", got, "abc-123")
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "encoding", err: &domain.EncodingError{Err: errors.New("bad")}, want: http.StatusBadRequest},
		{name: "validation", err: &domain.ValidationError{Field: "id"}, want: http.StatusBadRequest},
		{name: "region not found", err: &domain.RegionNotFoundError{ID: 3}, want: http.StatusNotFound},
		{name: "download not found", err: fmt.Errorf("%w: 3", domain.ErrDownloadNotFound), want: http.StatusNotFound},
		{name: "engine", err: &domain.EngineError{Operation: "remove", Err: domain.ErrRecordNotFound}, want: http.StatusInternalServerError},
		{name: "list", err: &domain.ListError{Err: errors.New("x")}, want: http.StatusInternalServerError},
		{name: "id exhausted", err: domain.ErrIDExhausted, want: http.StatusInternalServerError},
		{name: "unavailable", err: domain.ErrEngineClosed, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestBoolToStatus(t *testing.T) {
	if got := boolToStatus(true); got != "ok" {
		t.Errorf("boolToStatus(true) = %q, want %q", got, "ok")
	}
	if got := boolToStatus(false); got != "unhealthy" {
		t.Errorf("boolToStatus(false) = %q, want %q", got, "unhealthy")
	}
}
