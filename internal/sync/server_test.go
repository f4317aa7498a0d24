package sync

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datarmony/zukosync/pkg/config"
	"github.com/datarmony/zukosync/pkg/notify"
	"github.com/datarmony/zukosync/pkg/zuko"
)

func testServer(t *testing.T, fetcher Fetcher) *Server {
	t.Helper()
	cfg := testConfig(t, config.Form{Name: "signup_form", UUID: "uuid-1"})
	runner := NewRunner(cfg, fetcher, newFakeWarehouse(), notify.Nop{}, zap.NewNop())
	return NewServer(runner, &cfg.Server, zap.NewNop())
}

func TestHandleSync(t *testing.T) {
	s := testServer(t, &fakeFetcher{
		sessions: map[string][]zuko.Session{
			"uuid-1": {{"id": "s1"}, {"id": "s2"}},
		},
	})

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Failed)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "signup_form", resp.Results[0].Form)
	assert.Equal(t, 2, resp.Results[0].Fetched)
	assert.Equal(t, "created_loaded", resp.Results[0].Action)
}

func TestHandleSyncMethodNotAllowed(t *testing.T) {
	s := testServer(t, &fakeFetcher{})

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodGet, "/sync", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSyncRejectsConcurrentRun(t *testing.T) {
	s := testServer(t, &fakeFetcher{})
	s.running.Store(true)

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleSyncReportsFailure(t *testing.T) {
	s := testServer(t, &fakeFetcher{
		err: map[string]error{"uuid-1": assert.AnError},
	})

	rec := httptest.NewRecorder()
	s.handleSync(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp syncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Failed)
	assert.NotEmpty(t, resp.Results[0].Error)
}

func TestHandleHealthz(t *testing.T) {
	s := testServer(t, &fakeFetcher{})

	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
