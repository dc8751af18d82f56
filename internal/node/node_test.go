package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwwdoc/internal/config"
	"lwwdoc/internal/service"
	"lwwdoc/internal/value"
)

func startNode(t *testing.T, id string, sync time.Duration, peers ...*Node) *Node {
	t.Helper()

	cfg := config.Config{
		NodeID:       id,
		GRPCAddr:     "127.0.0.1:0",
		HTTPAddr:     "127.0.0.1:0",
		SyncInterval: sync,
	}
	for _, p := range peers {
		cfg.Peers = append(cfg.Peers, config.Peer{ID: p.cfg.NodeID, Addr: p.GRPCAddr()})
	}
	require.NoError(t, cfg.Validate())

	n, err := New(cfg, log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(n.Stop)
	return n
}

func httpDo(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestNode_HTTPWriteAndSync(t *testing.T) {
	n1 := startNode(t, "n1", time.Hour)
	n2 := startNode(t, "n2", time.Hour, n1)

	base2 := fmt.Sprintf("http://%s", n2.HTTPAddr())
	base1 := fmt.Sprintf("http://%s", n1.HTTPAddr())

	code, out := httpDo(t, http.MethodPut, base2+"/docs/order/fields/status", `{"value":"pending","timestamp":1,"writer":"svc-a"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["applied"])

	code, out = httpDo(t, http.MethodPost, base2+"/docs/order/sync", "")
	require.Equal(t, http.StatusOK, code, "%v", out)
	assert.Equal(t, 1.0, out["acks"])

	code, out = httpDo(t, http.MethodGet, base1+"/docs/order", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "pending"}, out)
}

func TestNode_ReplicateMergesBothWays(t *testing.T) {
	n1 := startNode(t, "n1", time.Hour)
	n2 := startNode(t, "n2", time.Hour, n1)
	ctx := context.Background()

	_, err := n1.Service().SetField(ctx, service.SetFieldRequest{ID: "doc", Field: "status", Value: value.MustOf("done"), Timestamp: 2, WriterID: "svc-b"})
	require.NoError(t, err)
	_, err = n2.Service().SetField(ctx, service.SetFieldRequest{ID: "doc", Field: "status", Value: value.MustOf("pending"), Timestamp: 1, WriterID: "svc-a"})
	require.NoError(t, err)
	_, err = n2.Service().SetField(ctx, service.SetFieldRequest{ID: "doc", Field: "owner", Value: value.MustOf("ann"), Timestamp: 1, WriterID: "svc-a"})
	require.NoError(t, err)

	res := n2.Replicator().Replicate(ctx, "doc")
	require.True(t, res.OK(), "err: %v", res.Err)

	want := map[string]any{"status": "done", "owner": "ann"}
	for _, n := range []*Node{n1, n2} {
		got, ok := n.Service().Export(ctx, "doc")
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestNode_AntiEntropy(t *testing.T) {
	n1 := startNode(t, "n1", time.Hour)
	n2 := startNode(t, "n2", 20*time.Millisecond, n1)
	ctx := context.Background()

	_, err := n2.Service().SetField(ctx, service.SetFieldRequest{ID: "doc", Field: "f", Value: value.MustOf(1)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, ok := n1.Service().GetField(ctx, "doc", "f")
		return ok && v.Interface() == 1.0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNode_SingleNodeSyncIsTrivial(t *testing.T) {
	n := startNode(t, "solo", time.Hour)
	base := fmt.Sprintf("http://%s", n.HTTPAddr())

	httpDo(t, http.MethodPut, base+"/docs/d/fields/f", `{"value":true}`)
	code, out := httpDo(t, http.MethodPost, base+"/docs/d/sync", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, out["replicas"])
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(config.Config{Persistence: config.Persistence{Driver: "postgres"}}, log.NewNopLogger())
	assert.Error(t, err)
}

func TestMetricsServer_Discard(t *testing.T) {
	m := newMetricsServer("", log.NewNopLogger())
	assert.Nil(t, m.server)
	require.NotNil(t, m.service)
	m.start()
	m.stop(context.Background())
}
