package mirrorhttp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fbxos/internal/entity"
	"github.com/koltyakov/fbxos/internal/log"
	"github.com/koltyakov/fbxos/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "fbxos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for _, f := range []entity.Fields{
		{"id": "AA:AA:AA:AA:AA:AA", "mac": "AA:AA:AA:AA:AA:AA", "comment": "nas", "ip": "192.168.1.10", "reachable": true},
		{"id": "BB:BB:BB:BB:BB:BB", "mac": "BB:BB:BB:BB:BB:BB", "comment": "printer", "ip": "192.168.1.20"},
	} {
		e, err := entity.New(entity.StaticLease, f, "http://box:80", entity.FromDevice)
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, e))
	}
	call, err := entity.New(entity.CallLog, entity.Fields{"id": 3, "status": "missed", "number": "0102"}, "http://box:80", entity.FromDevice)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, call))

	srv := httptest.NewServer(New(store, log.Discard()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

type listBody struct {
	Kind  string           `json:"kind"`
	Items []map[string]any `json:"items"`
	Count int              `json:"count"`
}

func TestKinds(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	var body struct {
		Kinds []kindInfo `json:"kinds"`
		Count int        `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/kinds", &body))
	assert.Equal(t, len(entity.Kinds()), body.Count)
	rows := map[string]int{}
	for _, k := range body.Kinds {
		rows[k.Name] = k.Rows
	}
	assert.Equal(t, 2, rows["static_lease"])
	assert.Equal(t, 1, rows["call_log"])
	assert.Equal(t, 0, rows["fw_redir"])
}

func TestListAndFilter(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	var all listBody
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/static-leases", &all))
	assert.Equal(t, "static_lease", all.Kind)
	assert.Equal(t, 2, all.Count)
	assert.Equal(t, "http://box:80", all.Items[0]["src"])

	var filtered listBody
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/static_lease?reachable=1", &filtered))
	require.Equal(t, 1, filtered.Count)
	assert.Equal(t, "nas", filtered.Items[0]["comment"])

	var empty listBody
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/fw_redir", &empty))
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.Count)

	var bad errorBody
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/static_lease?nope=1", &bad))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/widgets", &bad))
	assert.Equal(t, "not_found", bad.Code)
}

func TestGetByID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	var call map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/calls/3", &call))
	assert.Equal(t, "missed", call["status"])
	assert.Equal(t, false, call["new"])

	var lease map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/static_lease/BB:BB:BB:BB:BB:BB", &lease))
	assert.Equal(t, "printer", lease["comment"])

	var bad errorBody
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/calls/4", &bad))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/calls/abc", &bad))
}

func TestServeStopsWithContext(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(nil, log.Discard()).Serve(ctx, ln) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestProfilerIsOptIn(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	New(nil, log.Discard()).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	New(nil, log.Discard()).WithProfiler().Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "goroutine?debug=1")
}
