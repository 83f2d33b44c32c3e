// Command bridge exposes the services of a manifest to a control plane, over
// VAB (TCP or HTTP) for properties and operations, or over the console or a
// WebSocket for the data path.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"vab-bridge/config"
	"vab-bridge/dispatch"
	"vab-bridge/loader"
	"vab-bridge/logging"
	"vab-bridge/metrics"
	"vab-bridge/middleware"
	"vab-bridge/registry"
	"vab-bridge/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	mode := flag.String("mode", "", "override mode: console, ws, vab-tcp or vab-http")
	listen := flag.String("listen", "", "override listen address")
	serviceID := flag.String("service", "", "override service id for console/ws")
	logLevel := flag.String("log-level", "", "override log level")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if *mode != "" {
		cfg.Mode = config.Mode(*mode)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *serviceID != "" {
		cfg.ServiceID = *serviceID
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.NewLogger("bridge", cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("bridge stopped", zap.Error(err))
	}
	logger.Info("bridge exited")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rc := registry.NewContext()
	manifest, err := cfg.LoadManifest()
	if err != nil {
		return err
	}
	if err := loader.New(logger.Named("loader")).Load(rc, manifest); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	switch cfg.Mode {
	case config.ModeConsole:
		d := dispatch.NewDispatcher(rc, logger.Named("dispatch"))
		return dispatch.NewConsole(d, cfg.ServiceID).Run(ctx, os.Stdin, os.Stdout)
	case config.ModeWebSocket:
		d := dispatch.NewDispatcher(rc, logger.Named("dispatch"))
		router := mux.NewRouter()
		router.Handle("/", dispatch.NewWebSocket(d, cfg.ServiceID))
		return serveHTTP(ctx, cfg.Listen, router, logger)
	case config.ModeVABTCP:
		return serveVABTCP(ctx, cfg, newVABServer(cfg, rc, logger), logger)
	case config.ModeVABHTTP:
		listener, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return err
		}
		h := server.NewHTTPServer(newVABServer(cfg, rc, logger), cfg.MetricsAddr == "")
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			h.Shutdown(shutdownCtx)
		}()
		return h.Serve(listener)
	}
	return fmt.Errorf("unknown mode %q", cfg.Mode)
}

func newVABServer(cfg *config.Config, rc *registry.Context, logger *zap.Logger) *server.Server {
	svr := server.NewServer(rc, logger.Named("vab"))
	svr.AnnounceTTL = cfg.Etcd.TTL
	svr.Use(middleware.MetricsMiddleware())
	svr.Use(middleware.LoggingMiddleware(logger.Named("vab")))
	if cfg.RateLimit.Rate > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.Timeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.Timeout))
	}
	return svr
}

func serveVABTCP(ctx context.Context, cfg *config.Config, svr *server.Server, logger *zap.Logger) error {
	var announcer registry.Announcer
	if len(cfg.Etcd.Endpoints) > 0 {
		etcd, err := registry.NewEtcdAnnouncer(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer etcd.Close()
		announcer = etcd
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.Serve("tcp", cfg.Listen, cfg.AdvertiseAddr(), announcer)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := svr.Shutdown(shutdownTimeout); err != nil {
			return err
		}
		return <-errCh
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logger.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if err := serveHTTP(ctx, addr, router, logger.Named("metrics")); err != nil {
		logger.Error("metrics listener failed", zap.Error(err))
	}
}
