package it

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"

	"lwwdoc/internal/config"
)

// Cluster represents a test cluster of lwwnode processes
type Cluster struct {
	nodes      []*Node
	dir        string
	binaryPath string
	mu         sync.Mutex
}

// Node represents a single node in the test cluster
type Node struct {
	ID       string
	GRPCAddr string
	HTTPAddr string

	cfgPath string
	cmd     *exec.Cmd
	logFile *os.File
	client  *http.Client
}

// NewCluster creates a new test cluster harness. Configs and logs are
// written to dir.
func NewCluster(binaryPath, dir string) (*Cluster, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create cluster directory")
	}

	return &Cluster{
		nodes:      make([]*Node, 0),
		dir:        dir,
		binaryPath: binaryPath,
	}, nil
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

// StartCluster starts n fully meshed nodes named n1..nN.
func (c *Cluster) StartCluster(ctx context.Context, n int, syncInterval time.Duration) error {
	if _, err := os.Stat(c.binaryPath); os.IsNotExist(err) {
		return errors.Errorf("binary not found at %s, build it first with 'go build -o lwwnode ./cmd/lwwnode'", c.binaryPath)
	}

	nodes := make([]*Node, 0, n)
	for i := 1; i <= n; i++ {
		grpcAddr, err := freeAddr()
		if err != nil {
			return err
		}
		httpAddr, err := freeAddr()
		if err != nil {
			return err
		}
		nodes = append(nodes, &Node{
			ID:       fmt.Sprintf("n%d", i),
			GRPCAddr: grpcAddr,
			HTTPAddr: httpAddr,
			client:   &http.Client{Timeout: 5 * time.Second},
		})
	}

	for _, node := range nodes {
		cfg := config.Config{
			NodeID:            node.ID,
			GRPCAddr:          node.GRPCAddr,
			HTTPAddr:          node.HTTPAddr,
			ReplicationFactor: n,
			SyncInterval:      syncInterval,
			LogLevel:          "debug",
		}
		for _, peer := range nodes {
			if peer.ID != node.ID {
				cfg.Peers = append(cfg.Peers, config.Peer{ID: peer.ID, Addr: peer.GRPCAddr})
			}
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "encode config")
		}
		node.cfgPath = filepath.Join(c.dir, node.ID+".yaml")
		if err := os.WriteFile(node.cfgPath, data, 0644); err != nil {
			return errors.Wrap(err, "write config")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, node := range nodes {
		if err := c.start(ctx, node); err != nil {
			c.stopLocked()
			return errors.Wrapf(err, "failed to start node %s", node.ID)
		}
		c.nodes = append(c.nodes, node)
	}
	return nil
}

func (c *Cluster) start(ctx context.Context, node *Node) error {
	logFile, err := os.Create(filepath.Join(c.dir, node.ID+".log"))
	if err != nil {
		return errors.Wrap(err, "failed to create log file")
	}

	cmd := exec.CommandContext(ctx, c.binaryPath, "-config", node.cfgPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return err
	}
	node.cmd = cmd
	node.logFile = logFile

	return node.waitForReady(ctx, 10*time.Second)
}

// waitForReady polls the node's API until it answers
func (n *Node) waitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return errors.Errorf("timeout waiting for node %s to be ready", n.ID)
			}
			var ids struct {
				IDs []string `json:"ids"`
			}
			if _, err := n.do(ctx, http.MethodGet, "/docs", nil, &ids); err == nil {
				return nil
			}
		}
	}
}

// Stop stops all nodes in the cluster
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Cluster) stopLocked() {
	for _, node := range c.nodes {
		node.Stop()
	}
	c.nodes = nil
}

// Stop stops a single node
func (n *Node) Stop() {
	if n.cmd != nil && n.cmd.Process != nil {
		n.cmd.Process.Kill()
		n.cmd.Wait()
	}
	if n.logFile != nil {
		n.logFile.Close()
	}
}

// GetNode returns a node by ID
func (c *Cluster) GetNode(nodeID string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.ID == nodeID {
			return n
		}
	}
	return nil
}

// KillNode kills a specific node
func (c *Cluster) KillNode(nodeID string) error {
	node := c.GetNode(nodeID)
	if node == nil {
		return errors.Errorf("node %s not found", nodeID)
	}
	if node.cmd != nil && node.cmd.Process != nil {
		if err := node.cmd.Process.Kill(); err != nil {
			return errors.Wrapf(err, "failed to kill node %s", nodeID)
		}
		node.cmd.Wait()
	}
	return nil
}

// RestartNode restarts a killed node with its original configuration
func (c *Cluster) RestartNode(ctx context.Context, nodeID string) error {
	node := c.GetNode(nodeID)
	if node == nil {
		return errors.Errorf("node %s not found", nodeID)
	}
	if node.logFile != nil {
		node.logFile.Close()
	}
	return c.start(ctx, node)
}

// SetField writes a field through the node's API and returns the outcome.
func (n *Node) SetField(ctx context.Context, id, field string, v any, ts uint64, writer string) (string, error) {
	body := map[string]any{"value": v}
	if ts > 0 {
		body["timestamp"] = ts
	}
	if writer != "" {
		body["writer"] = writer
	}

	var out struct {
		Outcome string `json:"outcome"`
	}
	if _, err := n.do(ctx, http.MethodPut, "/docs/"+id+"/fields/"+field, body, &out); err != nil {
		return "", err
	}
	return out.Outcome, nil
}

// Export returns the flat view of a document, or nil if the node does not
// hold it.
func (n *Node) Export(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	code, err := n.do(ctx, http.MethodGet, "/docs/"+id, nil, &out)
	if code == http.StatusNotFound {
		return nil, nil
	}
	return out, err
}

// Sync asks the node to replicate a document and returns the ack count.
func (n *Node) Sync(ctx context.Context, id string) (int, error) {
	var out struct {
		Acks int `json:"acks"`
	}
	_, err := n.do(ctx, http.MethodPost, "/docs/"+id+"/sync", nil, &out)
	return out.Acks, err
}

// Repair asks the node to read repair a document and returns the stale
// replicas it found.
func (n *Node) Repair(ctx context.Context, id string) ([]string, error) {
	var out struct {
		Stale []string `json:"stale"`
	}
	_, err := n.do(ctx, http.MethodPost, "/docs/"+id+"/repair", nil, &out)
	return out.Stale, err
}

func (n *Node) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+n.HTTPAddr+path, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, errors.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}
