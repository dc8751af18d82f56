package replication

import (
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ClientManager manages gRPC clients to peer nodes.
type ClientManager struct {
	mu      sync.RWMutex
	opts    []grpc.DialOption
	conns   map[string]*grpc.ClientConn
	clients map[string]ReplicaClient
}

// NewClientManager creates a new client manager. Without options,
// connections use insecure transport credentials.
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &ClientManager{
		opts:    opts,
		conns:   make(map[string]*grpc.ClientConn),
		clients: make(map[string]ReplicaClient),
	}
}

// Get returns a client for the given address, creating the connection on
// first use. Connections are established lazily by gRPC.
func (cm *ClientManager) Get(addr string) (ReplicaClient, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	conn, err := grpc.NewClient(addr, cm.opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create client for %s", addr)
	}

	client = NewReplicaClient(conn)
	cm.conns[addr] = conn
	cm.clients[addr] = client
	return client, nil
}

// Close closes all client connections.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var first error
	for addr, conn := range cm.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s", addr)
		}
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.clients = make(map[string]ReplicaClient)
	return first
}
