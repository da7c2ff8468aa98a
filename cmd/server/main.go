package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"redisreplica/internal/logging"
	"redisreplica/internal/metrics"
	"redisreplica/internal/server"
)

func main() {
	cfg := server.DefaultConfig()

	host := flag.String("host", cfg.Host, "host to bind to")
	port := flag.Int("port", cfg.Port, "port to listen on")
	dir := flag.String("dir", cfg.Dir, "directory CONFIG GET dir reports")
	dbfilename := flag.String("dbfilename", cfg.DBFilename, "filename CONFIG GET dbfilename reports")
	replicaof := flag.String("replicaof", "", `"<host> <port>" to start as a follower of that leader`)
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on (empty disables)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	gops := flag.Bool("gops", false, "expose a github.com/google/gops diagnostics agent")
	envFile := flag.String("env-file", "", "optional .env file to load before parsing flags' defaults")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logrus.WithError(err).Warn("main: failed to load env file")
		}
	}

	// REDIS_PORT and REDIS_DIR fill in --port and --dir when those flags
	// were not given on the command line.
	setFlags := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { setFlags[fl.Name] = true })
	if v := os.Getenv("REDIS_PORT"); v != "" && !setFlags["port"] {
		if p, err := strconv.Atoi(v); err == nil {
			*port = p
		}
	}
	if v := os.Getenv("REDIS_DIR"); v != "" && !setFlags["dir"] {
		*dir = v
	}

	logging.Setup(logging.ParseLevel(*logLevel))

	cfg.Host = *host
	cfg.Port = *port
	cfg.Dir = *dir
	cfg.DBFilename = *dbfilename
	cfg.MetricsAddr = *metricsAddr
	cfg.EnableGops = *gops

	if *replicaof != "" {
		h, p, err := parseReplicaOf(*replicaof)
		if err != nil {
			logrus.WithError(err).Fatal("main: invalid --replicaof")
		}
		cfg.ReplicaOfHost = h
		cfg.ReplicaOfPort = p
	}

	if cfg.EnableGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			logrus.WithError(err).Warn("main: failed to start gops agent")
		}
	}

	reg := metrics.NewRegistry()
	reg.MustRegister(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("main: shutting down")
		cancel()
	}()

	srv := server.New(*cfg, reg)
	if err := srv.Run(ctx); err != nil {
		logrus.WithError(err).Fatal("main: server exited with error")
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logrus.WithField("addr", addr).Info("main: serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Warn("main: metrics server stopped")
	}
}

func parseReplicaOf(s string) (host string, port int, err error) {
	_, err = fmt.Sscanf(s, "%s %d", &host, &port)
	return host, port, err
}
