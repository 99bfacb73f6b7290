package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookgo/httpdown"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}
	log, err := newLogger(cfg.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "roomrelay:", err)
		os.Exit(2)
	}
	defer log.Sync()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("unable to load .env", zap.Error(envErr))
	}

	startMetrics(cfg.metricsTick)
	err = run(cfg, log)
	finalMetrics()
	if err != nil {
		log.Error("relay stopped", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

// run serves until a signal arrives or the listener fails, then shuts
// the relay down. Only a failure to listen is returned.
func run(cfg *config, log *zap.Logger) error {
	h := newHub(log)

	// Prepare the stoppable HTTP server
	server := &http.Server{
		Addr:    cfg.addr,
		Handler: newHandler(cfg, h),
	}
	hd := &httpdown.HTTP{
		StopTimeout: cfg.stopTimeout,
		KillTimeout: cfg.killTimeout,
	}
	hs, err := hd.ListenAndServe(server)
	if err != nil {
		h.heartbeat.stop()
		return fmt.Errorf("listen on %s: %w", cfg.addr, err)
	}
	log.Info("listening", zap.String("addr", cfg.addr), zap.Stringer("origins", cfg.origins))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	waitErr := make(chan error, 1)
	go func() { waitErr <- hs.Wait() }()

	select {
	case s := <-sig:
		log.Info("shutting down", zap.Stringer("signal", s))
	case err := <-waitErr:
		log.Error("server stopped", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.stopTimeout)
	defer cancel()
	if err := h.shutdown(ctx); err != nil {
		log.Warn("connections still open at shutdown", zap.Error(err))
	}
	if err := hs.Stop(); err != nil {
		log.Warn("http stop", zap.Error(err))
	}
	return nil
}

func newHandler(cfg *config, h *hub) http.Handler {
	handler := mux.NewRouter()
	handler.Use(corsMiddleware(cfg.origins))

	// Route websocket requests on any path
	handler.NewRoute().HeadersRegexp(
		"Connection", "(?i)upgrade",
		"Upgrade", "(?i)websocket",
	).Handler(newWsHandler(h, cfg.origins))

	// Preflight for any path
	handler.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	handler.Methods(http.MethodGet).Path("/health").HandlerFunc(healthHandler)
	handler.Methods(http.MethodGet).Path("/debug/origins").Handler(originsHandler{cfg: cfg})
	handler.Methods(http.MethodGet).Path("/stats").Handler(statsHandler{h: h})
	handler.Methods(http.MethodGet).Path("/metrics").Handler(metricsHandler{m: m})

	// Route room GET and POST requests
	handler.Methods(http.MethodPost).Path("/rooms/{roomId}").Handler(postHandler{h: h})
	handler.Methods(http.MethodGet).Path("/rooms/{roomId}").Handler(getHandler{})
	handler.Methods(http.MethodGet).Path("/").Handler(getHandler{})

	return handler
}
