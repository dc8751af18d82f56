package node

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lwwdoc/internal/service"
)

// metricsServer exposes the node's prometheus registry.
type metricsServer struct {
	addr    string
	logger  log.Logger
	service *service.Metrics
	server  *http.Server
}

func newMetricsServer(addr string, logger log.Logger) *metricsServer {
	m := &metricsServer{
		addr:   addr,
		logger: logger,
	}

	if addr == "" {
		m.service = service.NewDiscardMetrics()
		return m
	}

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m.service = service.NewPrometheusMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: addr, Handler: mux}
	return m
}

func (m *metricsServer) start() {

	if m.server == nil {
		level.Debug(m.logger).Log("msg", "prometheus addr is empty, not exposing prometheus metrics")
		return
	}

	level.Info(m.logger).Log("msg", "prometheus handler listening", "addr", m.addr)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Warn(m.logger).Log("msg", "failed to serve prometheus metrics", "err", err)
		}
	}()
}

func (m *metricsServer) stop(ctx context.Context) {
	if m.server == nil {
		return
	}
	if err := m.server.Shutdown(ctx); err != nil {
		level.Warn(m.logger).Log("msg", "failed to shut down metrics server", "err", err)
	}
}
