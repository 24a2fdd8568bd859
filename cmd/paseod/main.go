// Command paseod is the Paseo orchestration daemon: it owns the Agent
// Manager, the Session Hub's WebSocket listener, and the PID lock
// guaranteeing one writer per listen address.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getpaseo/paseo/internal/agent"
	"github.com/getpaseo/paseo/internal/config"
	"github.com/getpaseo/paseo/internal/hub"
	"github.com/getpaseo/paseo/internal/metrics"
	"github.com/getpaseo/paseo/internal/pidlock"
	"github.com/getpaseo/paseo/internal/provider"
	"github.com/getpaseo/paseo/internal/registry"
	"github.com/getpaseo/paseo/internal/tracing"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("paseod starting", slog.String("version", version), slog.String("commit", commit), slog.String("date", date))

	if err := run(logger); err != nil {
		logger.Error("paseod exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	home := envOrDefault("PASEO_HOME", defaultHome())
	listenAddr := envOrDefault("PASEO_LISTEN", "127.0.0.1:7890")
	allowedHosts := parseAllowedHosts(os.Getenv("PASEO_ALLOWED_HOSTS"))

	var watcherCfg *config.Config
	configPath := config.ResolvePath("")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		watcherCfg = cfg
		if os.Getenv("PASEO_HOME") == "" && cfg.Server.Home != "" {
			home = cfg.Server.Home
		}
		if os.Getenv("PASEO_LISTEN") == "" && cfg.Server.Listen != "" {
			listenAddr = cfg.Server.Listen
		}
		if os.Getenv("PASEO_ALLOWED_HOSTS") == "" && len(cfg.Server.AllowedHosts) > 0 {
			allowedHosts = cfg.Server.AllowedHosts
		}
	}

	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("create home dir %s: %w", home, err)
	}

	lock, err := pidlock.Acquire(pidlock.Options{Home: home, ListenAddr: listenAddr, SockPath: listenAddr})
	if err != nil {
		return fmt.Errorf("acquire pid lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release pid lock failed", slog.String("error", err.Error()))
		}
	}()

	lockAudit, err := pidlock.OpenAuditLog(home)
	if err != nil {
		logger.Warn("pid lock audit log disabled", slog.String("error", err.Error()))
	}
	listenKey := pidlock.ListenKey(listenAddr)
	_ = lockAudit.Record(pidlock.AuditEventAcquired, listenKey, os.Getpid(), nil)
	defer func() {
		_ = lockAudit.Record(pidlock.AuditEventReleased, listenKey, os.Getpid(), nil)
		_ = lockAudit.Close()
	}()

	store, err := registry.NewSQLiteStore(filepath.Join(home, "registry.db"))
	if err != nil {
		return fmt.Errorf("open registry store: %w", err)
	}
	defer store.Close()

	providers := provider.NewRegistry()
	providers.Register(provider.NewClaudeAdapter())
	providers.Register(provider.NewCodexAdapter())
	providers.Register(provider.NewOpenCodeAdapter())

	metricsEnabled := true
	metricsListen := "127.0.0.1:9090"
	if watcherCfg != nil {
		metricsEnabled = watcherCfg.Observability.Metrics.Enabled
		if watcherCfg.Observability.Metrics.Listen != "" {
			metricsListen = watcherCfg.Observability.Metrics.Listen
		}
	}
	m := metrics.NewMetrics()

	tracingCfg := tracing.Config{ServiceName: "paseod", ServiceVersion: version}
	if watcherCfg != nil && watcherCfg.Observability.Tracing.Enabled {
		tracingCfg.Endpoint = watcherCfg.Observability.Tracing.Endpoint
		if watcherCfg.Observability.Tracing.ServiceName != "" {
			tracingCfg.ServiceName = watcherCfg.Observability.Tracing.ServiceName
		}
	}
	tracer, tracerShutdown := tracing.NewTracer(tracingCfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
	}()

	manager := agent.NewManager(agent.Options{
		Providers: providers,
		Store:     store,
		Logger:    logger,
		Metrics:   m,
		Tracer:    tracer,
	})

	reconciler := agent.NewReconciler(store, pidlock.GC, agent.ReconcilerConfig{
		PidLockHome: home,
		Logger:      logger,
		Metrics:     m,
	})
	if err := reconciler.Start(); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	defer reconciler.Stop()

	h := hub.New(manager, logger, version)
	h.SetMetrics(m)
	stopHub := make(chan struct{})
	go h.Run(stopHub)
	defer close(stopHub)

	server := hub.NewServer(h, logger, allowedHosts)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(listenAddr)
	}()
	logger.Info("paseod listening", slog.String("addr", listenAddr), slog.String("home", home))

	if metricsEnabled {
		metricsSrv := &http.Server{Addr: metricsListen, Handler: promhttp.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server exited", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
		logger.Info("paseod metrics listening", slog.String("addr", metricsListen))
	}

	if watcherCfg != nil {
		watcher := config.NewWatcher(configPath, server.ReplaceAllowlist, logger)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		if err := watcher.Start(watchCtx); err != nil {
			logger.Warn("config watch disabled", slog.String("error", err.Error()))
		} else {
			defer watcher.Stop()
		}
		defer watchCancel()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		logger.Info("paseod shutting down")
	case <-h.ShutdownRequested():
		logger.Info("paseod shutting down: client requested shutdown_server_request")
		_ = lockAudit.Record(pidlock.AuditEventShutdownRequest, listenKey, os.Getpid(), nil)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("hub server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	manager.Shutdown(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paseo"
	}
	return filepath.Join(home, ".paseo")
}

func parseAllowedHosts(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
