package node

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"lwwdoc/internal/api"
	"lwwdoc/internal/clock"
	"lwwdoc/internal/config"
	"lwwdoc/internal/replication"
	"lwwdoc/internal/ring"
	"lwwdoc/internal/service"
	"lwwdoc/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Node represents a single node in the distributed system.
type Node struct {
	cfg    config.Config
	logger log.Logger

	store      *storage.InMemoryStore
	backend    storage.Backend
	clock      *clock.Lamport
	ring       *ring.Ring
	clientMgr  *replication.ClientManager
	replicator *replication.Replicator
	service    service.Service
	metrics    *metricsServer

	grpcServer *grpc.Server
	grpcLis    net.Listener
	echo       *echo.Echo
	httpLis    net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new node from a validated configuration.
func New(cfg config.Config, logger log.Logger) (*Node, error) {
	logger = log.With(logger, "node", cfg.NodeID)

	backend, err := newBackend(cfg.Persistence)
	if err != nil {
		return nil, err
	}

	store := storage.NewInMemoryStore()
	clk := clock.New(0)

	rng := ring.NewRing(cfg.VNodes)
	rng.SetNodes(cfg.BuildRingNodes())
	self := ring.Node{ID: cfg.NodeID, Addr: cfg.GRPCAddr}

	metrics := newMetricsServer(cfg.MetricsAddr, logger)

	var svc service.Service
	svc = service.New(cfg.NodeID, store, clk)
	svc = service.NewMetricsService(svc, metrics.service)
	svc = service.NewLoggingService(svc, log.With(logger, "component", "service"))

	clientMgr := replication.NewClientManager()
	replicator := replication.NewReplicator(self, rng, clientMgr, svc, replication.Config{
		ReplicationFactor: cfg.ReplicationFactor,
		WriteAcks:         cfg.WriteAcks,
	}, logger)

	return &Node{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		backend:    backend,
		clock:      clk,
		ring:       rng,
		clientMgr:  clientMgr,
		replicator: replicator,
		service:    svc,
		metrics:    metrics,
	}, nil
}

func newBackend(p config.Persistence) (storage.Backend, error) {
	switch p.Driver {
	case config.DriverRedis:
		return storage.NewRedisBackend(storage.NewRedis(p.Addr, p.Password, p.DB), p.Prefix), nil
	case config.DriverMemcached:
		return storage.NewMemcachedBackend(storage.NewMemcached(p.Addr), p.Prefix), nil
	case config.DriverNone, "":
		return storage.NopBackend{}, nil
	default:
		return nil, errors.Errorf("unknown persistence driver %q", p.Driver)
	}
}

// Start restores persisted documents, binds the listeners and starts the
// background loops. It returns once the node is serving.
func (n *Node) Start(ctx context.Context) error {
	restored, err := storage.Restore(ctx, n.store, n.backend)
	if err != nil {
		return errors.Wrap(err, "restore documents")
	}
	for _, id := range n.store.IDs() {
		if doc, ok := n.store.Get(id); ok {
			n.clock.Observe(doc.MaxTimestamp())
		}
	}
	if restored > 0 {
		level.Info(n.logger).Log("msg", "restored documents", "count", restored, "clock", n.clock)
	}

	n.grpcLis, err = net.Listen("tcp", n.cfg.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", n.cfg.GRPCAddr)
	}
	n.httpLis, err = net.Listen("tcp", n.cfg.HTTPAddr)
	if err != nil {
		n.grpcLis.Close()
		return errors.Wrapf(err, "failed to listen on %s", n.cfg.HTTPAddr)
	}

	n.grpcServer = grpc.NewServer()
	replication.RegisterReplicaServer(n.grpcServer, replication.NewServer(n.service, n.cfg.NodeID, n.logger))
	// Enable gRPC reflection for grpcurl
	reflection.Register(n.grpcServer)

	n.echo = echo.New()
	n.echo.HideBanner = true
	n.echo.HidePort = true
	n.echo.Use(middleware.Recover())
	n.echo.Listener = n.httpLis
	api.NewHandler(n.service, n.replicator, n.logger).RegisterRoutes(n.echo)

	loopCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.goRun(func() {
		if err := n.grpcServer.Serve(n.grpcLis); err != nil {
			level.Error(n.logger).Log("msg", "grpc server stopped", "err", err)
		}
	})
	n.goRun(func() {
		if err := n.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(n.logger).Log("msg", "http server stopped", "err", err)
		}
	})
	n.goRun(func() { n.replicator.Run(loopCtx, n.cfg.SyncInterval) })
	if _, nop := n.backend.(storage.NopBackend); !nop {
		n.goRun(func() { n.flushLoop(loopCtx) })
	}
	n.metrics.start()

	level.Info(n.logger).Log(
		"msg", "node started",
		"grpc", n.grpcLis.Addr(),
		"http", n.httpLis.Addr(),
		"peers", len(n.cfg.Peers),
	)
	return nil
}

// Stop gracefully stops the node and flushes pending writes.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if n.echo != nil {
		if err := n.echo.Shutdown(ctx); err != nil {
			level.Warn(n.logger).Log("msg", "failed to shut down http server", "err", err)
		}
	}
	if n.grpcServer != nil {
		level.Info(n.logger).Log("msg", "stopping node")
		n.grpcServer.GracefulStop()
	}
	n.metrics.stop(ctx)
	n.wg.Wait()
	n.replicator.Wait()

	n.flush(ctx)
	if err := n.clientMgr.Close(); err != nil {
		level.Warn(n.logger).Log("msg", "failed to close peer connections", "err", err)
	}
	if err := n.backend.Close(); err != nil {
		level.Warn(n.logger).Log("msg", "failed to close backend", "err", err)
	}
}

// GRPCAddr returns the bound replica address.
func (n *Node) GRPCAddr() string {
	return n.grpcLis.Addr().String()
}

// HTTPAddr returns the bound API address.
func (n *Node) HTTPAddr() string {
	return n.httpLis.Addr().String()
}

// Service returns the document service of the node.
func (n *Node) Service() service.Service {
	return n.service
}

// Replicator returns the replicator of the node.
func (n *Node) Replicator() *replication.Replicator {
	return n.replicator
}

func (n *Node) goRun(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
}

func (n *Node) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.flush(ctx)
		}
	}
}

func (n *Node) flush(ctx context.Context) {
	saved, err := storage.Flush(ctx, n.store, n.backend)
	if err != nil {
		level.Warn(n.logger).Log("msg", "failed to flush documents", "saved", saved, "err", err)
		return
	}
	if saved > 0 {
		level.Debug(n.logger).Log("msg", "flushed documents", "saved", saved)
	}
}
