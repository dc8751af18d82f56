package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"lwwdoc/internal/config"
	"lwwdoc/internal/node"
)

// initLogger initializes a JSON gokit-logger set
// to the according log level.
func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

func main() {

	// Parse command-line flag that defines a config path.
	configFlag := flag.String("config", "config.yaml", "Provide path to configuration file in YAML syntax.")
	peersFlag := flag.String("peers", "", "Override the configured peers, as id1=addr1,id2=addr2.")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		level.Error(initLogger("error")).Log(
			"msg", "failed to load config",
			"config", *configFlag,
			"err", err,
		)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)

	if *peersFlag != "" {
		peers, err := config.ParsePeers(*peersFlag)
		if err != nil {
			level.Error(logger).Log("msg", "failed to parse peers", "err", err)
			os.Exit(1)
		}
		cfg.Peers = peers
		if err := cfg.Validate(); err != nil {
			level.Error(logger).Log("msg", "invalid peers", "err", err)
			os.Exit(1)
		}
	}

	n, err := node.New(cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create node", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		level.Error(logger).Log("msg", "failed to start node", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	level.Info(logger).Log("msg", "shutting down")
	n.Stop()
}
