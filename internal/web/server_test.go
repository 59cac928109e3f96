package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gobimport/internal/config"
	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/importer"
	"github.com/JonMunkholm/gobimport/internal/mutations"
)

const meetboutenDataset = `
catalogue: meetbouten
entity: meetbouten
source: {name: AMSBI, application: Grondwater, entity_id: nummer, type: file, config: {file_name: rows.csv}}
`

// blockingRunner finishes a run when release is closed or the run is
// cancelled.
type blockingRunner struct {
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, ds *core.Dataset, mode mutations.Mode) (*importer.Message, error) {
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &importer.Message{
		Header:  importer.Header{Catalogue: ds.Catalogue, Entity: ds.Entity, Mode: string(mode)},
		Summary: map[string]int{"num_records": 3},
	}, nil
}

type listerFunc func(ctx context.Context, dirURL string) ([]string, error)

func (f listerFunc) List(ctx context.Context, dirURL string) ([]string, error) {
	return f(ctx, dirURL)
}

type testEnv struct {
	server  *Server
	dataDir string
	runner  *blockingRunner
}

func newTestEnv(t *testing.T, limit int, mi *importer.MutationsImport, security config.SecurityConfig) *testEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meetbouten.yaml"), []byte(meetboutenDataset), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("catalogue: meetbouten\n"), 0o644))

	runner := &blockingRunner{}
	svc := importer.NewService(runner, mi, importer.NewImportLimiter(limit, 10*time.Millisecond),
		importer.ServiceConfig{DataDir: dir})
	srv := NewServer(svc, config.ServerConfig{Host: "127.0.0.1", Port: 0}, security)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return &testEnv{server: srv, dataDir: dir, runner: runner}
}

func (e *testEnv) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) waitStatus(t *testing.T, id string, want importer.Status) importer.ImportState {
	t.Helper()
	var state importer.ImportState
	require.Eventually(t, func() bool {
		rec := e.do(http.MethodGet, "/api/imports/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		state = decode[importer.ImportState](t, rec)
		return state.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return state
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 2, nil, config.SecurityConfig{})

	rec := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["imports"].(map[string]any)["maxConcurrent"])
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{})
	env.do(http.MethodGet, "/health", "")

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gobimport_http_request_duration_seconds")
}

func TestStartImport(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{})

	rec := env.do(http.MethodPost, "/api/imports", `{"dataset": "meetbouten.yaml"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode[StartImportResponse](t, rec)
	require.NotEmpty(t, resp.ImportID)
	assert.Equal(t, "/api/imports/"+resp.ImportID, rec.Header().Get("Location"))

	state := env.waitStatus(t, resp.ImportID, importer.StatusSucceeded)
	require.NotNil(t, state.Result)
	assert.Equal(t, "meetbouten", state.Result.Header.Catalogue)
	assert.Equal(t, 3, state.Result.Summary["num_records"])

	list := decode[[]importer.ImportState](t, env.do(http.MethodGet, "/api/imports", ""))
	require.Len(t, list, 1)
	assert.Equal(t, resp.ImportID, list[0].ID)
}

func TestStartImport_BadRequests(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed json", body: `{"dataset":`, status: http.StatusBadRequest, code: "REQ001"},
		{name: "unknown field", body: `{"dataset": "meetbouten.yaml", "force": true}`, status: http.StatusBadRequest, code: "REQ001"},
		{name: "no dataset", body: `{}`, status: http.StatusBadRequest, code: "REQ001"},
		{name: "outside data dir", body: `{"dataset": "../etc/passwd"}`, status: http.StatusBadRequest, code: "REQ001"},
		{name: "missing dataset", body: `{"dataset": "absent.yaml"}`, status: http.StatusNotFound, code: "DS002"},
		{name: "invalid dataset", body: `{"dataset": "broken.yaml"}`, status: http.StatusBadRequest, code: "DS001"},
		{name: "mutations disabled", body: `{"dataset": "meetbouten.yaml", "mutations": true}`, status: http.StatusNotImplemented, code: "MUT001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/imports", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
	assert.Empty(t, decode[[]importer.ImportState](t, env.do(http.MethodGet, "/api/imports", "")))
}

func TestStartImport_TooMany(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{})
	env.runner.release = make(chan struct{})

	first := env.do(http.MethodPost, "/api/imports", `{"dataset": "meetbouten.yaml"}`)
	require.Equal(t, http.StatusAccepted, first.Code)

	rec := env.do(http.MethodPost, "/api/imports", `{"dataset": "meetbouten.yaml"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "IMP002", decode[ErrorResponse](t, rec).Code)

	queue := decode[importer.LimiterStatus](t, env.do(http.MethodGet, "/api/imports/queue", ""))
	assert.Equal(t, 1, queue.Active)
	assert.Equal(t, 0, queue.Available)

	close(env.runner.release)
	env.waitStatus(t, decode[StartImportResponse](t, first).ImportID, importer.StatusSucceeded)
}

func TestGetImport_NotFound(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{})

	rec := env.do(http.MethodGet, "/api/imports/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "IMP001", resp.Code)
	assert.NotEmpty(t, resp.RequestID)
}

func TestCancelImport(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{})
	env.runner.release = make(chan struct{})

	rec := env.do(http.MethodPost, "/api/imports", `{"dataset": "meetbouten.yaml"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[StartImportResponse](t, rec).ImportID

	rec = env.do(http.MethodPost, "/api/imports/"+id+"/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.waitStatus(t, id, importer.StatusCancelled)

	rec = env.do(http.MethodPost, "/api/imports/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IMP003", decode[ErrorResponse](t, rec).Code)
}

func TestMutationState(t *testing.T) {
	lister := listerFunc(func(context.Context, string) ([]string, error) {
		return []string{"BAGGEM0363L-15012021.zip"}, nil
	})
	mi := importer.NewMutationsImport(&blockingRunner{}, mutations.NewMemoryStore(), mutations.Options{
		BaseURL:  "https://extracts.example.com/bag",
		Gemeente: "0363",
		Lister:   lister,
		Now:      func() time.Time { return time.Date(2021, 1, 20, 8, 0, 0, 0, time.UTC) },
	})
	env := newTestEnv(t, 1, mi, config.SecurityConfig{})

	rec := env.do(http.MethodGet, "/api/mutations/bag/verblijfsobjecten/BAGExtract", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[MutationStateResponse](t, rec)
	assert.Nil(t, resp.Last)
	assert.True(t, resp.HaveNext)

	rec = env.do(http.MethodGet, "/api/mutations/bag/verblijfsobjecten/Neuron", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MUT002", decode[ErrorResponse](t, rec).Code)
}

func TestMutationState_Disabled(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{})

	rec := env.do(http.MethodGet, "/api/mutations/bag/panden/BAGExtract", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, 1, nil, config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}})

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/imports", "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/imports", "", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/imports", "", "X-API-Key", "secret").Code)
}
