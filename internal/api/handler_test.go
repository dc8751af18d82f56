package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwwdoc/internal/clock"
	"lwwdoc/internal/document"
	"lwwdoc/internal/quorum"
	"lwwdoc/internal/service"
	"lwwdoc/internal/storage"
)

type fakeSyncer struct {
	res   quorum.Result
	stale []string
	calls []string
}

func (f *fakeSyncer) Replicate(_ context.Context, id string) quorum.Result {
	f.calls = append(f.calls, id)
	return f.res
}

func (f *fakeSyncer) Repair(_ context.Context, id string) (quorum.Result, []string) {
	f.calls = append(f.calls, "repair:"+id)
	return f.res, f.stale
}

func newTestServer(syncer Syncer) *echo.Echo {
	svc := service.New("node-1", storage.NewInMemoryStore(), clock.New(0))
	e := echo.New()
	NewHandler(svc, syncer, log.NewNopLogger()).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestSetAndGetField(t *testing.T) {
	e := newTestServer(nil)

	code, out := do(t, e, http.MethodPut, "/docs/d1/fields/status", `{"value":"pending","timestamp":1,"writer":"svc-a"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"applied": true, "outcome": "inserted"}, out)

	code, out = do(t, e, http.MethodPut, "/docs/d1/fields/status", `{"value":"done","timestamp":2,"writer":"svc-b"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "replaced", out["outcome"])

	code, out = do(t, e, http.MethodPut, "/docs/d1/fields/status", `{"value":"stale","timestamp":1,"writer":"svc-c"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"applied": false, "outcome": "superseded"}, out)

	code, out = do(t, e, http.MethodGet, "/docs/d1/fields/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"value": "done"}, out)
}

func TestSetField_StructuredValueAndStamping(t *testing.T) {
	e := newTestServer(nil)

	code, _ := do(t, e, http.MethodPut, "/docs/d1/fields/meta", `{"value":{"tags":["a","b"],"n":null}}`)
	require.Equal(t, http.StatusOK, code)

	code, out := do(t, e, http.MethodGet, "/docs/d1/snapshot", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "d1", out["id"])
	meta := out["fields"].(map[string]any)["meta"].(map[string]any)
	assert.Equal(t, map[string]any{"tags": []any{"a", "b"}, "n": nil}, meta["value"])
	assert.Equal(t, 1.0, meta["timestamp"])
	assert.Equal(t, "node-1", meta["writer"])
}

func TestSetField_BadRequests(t *testing.T) {
	e := newTestServer(nil)

	for name, body := range map[string]string{
		"not json":      `{`,
		"missing value": `{"timestamp":1}`,
		"bad timestamp": `{"value":1,"timestamp":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			code, out := do(t, e, http.MethodPut, "/docs/d1/fields/f", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestNotFound(t *testing.T) {
	e := newTestServer(nil)
	do(t, e, http.MethodPut, "/docs/d1/fields/f", `{"value":1}`)

	for _, path := range []string{"/docs/nope", "/docs/nope/snapshot", "/docs/d1/fields/missing"} {
		code, _ := do(t, e, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, code, path)
	}
	code, _ := do(t, e, http.MethodPost, "/docs/nope/sync", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExportAndList(t *testing.T) {
	e := newTestServer(nil)
	do(t, e, http.MethodPut, "/docs/b/fields/x", `{"value":1}`)
	do(t, e, http.MethodPut, "/docs/a/fields/y", `{"value":"two"}`)
	do(t, e, http.MethodPut, "/docs/a/fields/z", `{"value":[true]}`)

	code, out := do(t, e, http.MethodGet, "/docs/a", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"y": "two", "z": []any{true}}, out)

	code, out = do(t, e, http.MethodGet, "/docs", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"a", "b"}, out["ids"])
}

func TestMerge(t *testing.T) {
	e := newTestServer(nil)
	do(t, e, http.MethodPut, "/docs/d1/fields/status", `{"value":"pending","timestamp":1,"writer":"svc-a"}`)

	snapshot := `{"id":"d1","fields":{
		"status":{"value":"done","timestamp":2,"writer":"svc-b"},
		"owner":{"value":"ann","timestamp":1,"writer":"svc-b"}}}`
	code, out := do(t, e, http.MethodPost, "/docs/d1/merge", snapshot)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, out["applied"])
	assert.Equal(t, []any{"owner", "status"}, out["fields"])

	// Merging the same snapshot again changes nothing.
	code, out = do(t, e, http.MethodPost, "/docs/d1/merge", snapshot)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, out["applied"])
	assert.Equal(t, []any{}, out["fields"])

	_, out = do(t, e, http.MethodGet, "/docs/d1", "")
	assert.Equal(t, map[string]any{"status": "done", "owner": "ann"}, out)
}

func TestMerge_SnapshotWithoutIDUsesPath(t *testing.T) {
	e := newTestServer(nil)

	code, _ := do(t, e, http.MethodPost, "/docs/d2/merge", `{"fields":{"f":{"value":1,"timestamp":1,"writer":"w"}}}`)
	require.Equal(t, http.StatusOK, code)

	code, out := do(t, e, http.MethodGet, "/docs/d2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"f": 1.0}, out)
}

func TestMerge_Rejects(t *testing.T) {
	e := newTestServer(nil)

	code, _ := do(t, e, http.MethodPost, "/docs/d1/merge", `{"id":"other","fields":{}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/docs/d1/merge", `{"id":"d1","fields":{"f":{"value":1,"timestamp":"x"}}}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSync(t *testing.T) {
	syncer := &fakeSyncer{res: quorum.Result{Acks: 2, Required: 2, Replicas: 2}}
	e := newTestServer(syncer)
	do(t, e, http.MethodPut, "/docs/d1/fields/f", `{"value":1}`)

	code, out := do(t, e, http.MethodPost, "/docs/d1/sync", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"acks": 2.0, "required": 2.0, "replicas": 2.0}, out)
	assert.Equal(t, []string{"d1"}, syncer.calls)

	syncer.res = quorum.Result{Acks: 1, Required: 2, Replicas: 2, Err: errors.Wrap(quorum.ErrNotMet, "acks=1")}
	code, out = do(t, e, http.MethodPost, "/docs/d1/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, 1.0, out["acks"])
	assert.Contains(t, out["error"], "quorum not met")
}

func TestSync_WithoutSyncer(t *testing.T) {
	e := newTestServer(nil)
	do(t, e, http.MethodPut, "/docs/d1/fields/f", `{"value":1}`)

	code, out := do(t, e, http.MethodPost, "/docs/d1/sync", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, out["replicas"])
}

func TestSnapshotBodyDecodesAsDocument(t *testing.T) {
	e := newTestServer(nil)
	do(t, e, http.MethodPut, "/docs/d1/fields/f", `{"value":"x","timestamp":7,"writer":"w"}`)

	req := httptest.NewRequest(http.MethodGet, "/docs/d1/snapshot", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	doc := document.New("")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), doc))
	r, ok := doc.Register("f")
	require.True(t, ok)
	assert.Equal(t, uint64(7), r.Timestamp)
}

func TestRepair(t *testing.T) {
	syncer := &fakeSyncer{res: quorum.Result{Acks: 2, Required: 2, Replicas: 2}, stale: []string{"n1", "n3"}}
	e := newTestServer(syncer)

	// Repair also works for documents only peers hold.
	code, out := do(t, e, http.MethodPost, "/docs/remote-only/repair", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"n1", "n3"}, out["stale"])
	assert.Equal(t, 2.0, out["acks"])
	assert.Equal(t, []string{"repair:remote-only"}, syncer.calls)

	syncer.res = quorum.Result{Replicas: 2, Required: 2, Err: errors.Wrap(quorum.ErrNotMet, "acks=0")}
	syncer.stale = nil
	code, out = do(t, e, http.MethodPost, "/docs/remote-only/repair", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, []any{}, out["stale"])
}
