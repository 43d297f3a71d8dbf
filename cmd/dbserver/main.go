// Command dbserver runs one Perch database server: it registers with
// the coordinator, then waits for deployment bundles and instantiates
// the snippet engines they carry.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/config"
	"github.com/perchdb/perch/internal/log"
	"github.com/perchdb/perch/internal/registry"
	"github.com/perchdb/perch/internal/transport"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatal

// main starts a database server.
//
// Required environment:
//   - PERCH_SERVERID: unique identifier for this server
//   - PERCH_COORDINATOR: base URL of the coordinator
//
// Optional environment:
//   - PERCH_LISTEN: local listen address (default ":8081")
//   - PERCH_ADVERTISE: address registered with the coordinator
//     (default: the listen address)
//   - PERCH_SWEEPINTERVAL: engine sweep cadence (default 30s)
//
// Exit codes:
//   - 0: normal shutdown via signal
//   - 1: missing required configuration
//   - 1: failed to register with coordinator
//   - 1: failed to start HTTP server
func main() {
	cfg := config.DBServer{
		Listen:        ":8081",
		SweepInterval: 30 * time.Second,
		Log:           log.Config{Level: "info", Format: "console"},
	}
	if err := config.Load(config.Prefix, &cfg); err != nil {
		logFatal("load config", zap.Error(err))
	}
	log.Init(cfg.Log)

	if cfg.ServerID == "" {
		logFatal("missing PERCH_SERVERID")
	}
	if cfg.Coordinator == "" {
		logFatal("missing PERCH_COORDINATOR")
	}
	advertise := cfg.Advertise
	if advertise == "" {
		advertise = cfg.Listen
	}

	reg := registry.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx, cfg.SweepInterval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", transport.NewHandler(reg))

	s := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("dbserver listening",
			zap.String("server", cfg.ServerID),
			zap.String("addr", cfg.Listen),
			zap.String("advertise", advertise))
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen", zap.Error(err))
		}
	}()

	register(ctx, cfg.Coordinator, cfg.ServerID, advertise)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}
	log.Info("dbserver stopped")
}

// register announces this server to the coordinator, retrying to ride
// out coordinator startup delays. A server the coordinator does not
// know cannot lead shards, so persistent failure is fatal.
//
// Retry strategy:
//   - 10 attempts maximum
//   - 400ms delay between attempts
//   - total retry window around 4 seconds
func register(ctx context.Context, coord, id, addr string) {
	body := cluster.RegisterRequest{Server: cluster.ServerInfo{ID: cluster.ServerID(id), Addr: addr}}
	var lastErr error

	for i := 0; i < 10; i++ {
		lastErr = cluster.PostJSON(ctx, coord+"/servers/register", body, nil)
		if lastErr == nil {
			log.Info("registered with coordinator", zap.String("coordinator", coord))
			return
		}
		log.Warn("register retry", zap.Int("attempt", i+1), zap.Error(lastErr))
		time.Sleep(400 * time.Millisecond)
	}

	logFatal("failed to register with coordinator", zap.Error(lastErr))
}
