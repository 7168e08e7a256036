package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/healthwatch/healthwatch/pkg/rpc"
	"github.com/healthwatch/healthwatch/server/internal/alerts"
	"github.com/healthwatch/healthwatch/server/internal/api"
	"github.com/healthwatch/healthwatch/server/internal/auth"
	"github.com/healthwatch/healthwatch/server/internal/config"
	"github.com/healthwatch/healthwatch/server/internal/receiver"
	"github.com/healthwatch/healthwatch/server/internal/risk"
	"github.com/healthwatch/healthwatch/server/internal/store"
	"github.com/healthwatch/healthwatch/server/internal/ws"
)

// shutdownTimeout bounds HTTP drain and pending notification delivery.
const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	streamInterval := flag.Duration("stream-interval", 5*time.Second, "how often the WebSocket hub pushes the fleet summary")
	flag.Parse()

	// A missing .env is normal; values already in the environment win.
	_ = godotenv.Load()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("healthwatch-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server
	level.Set(parseLevel(sc.LogLevel))

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"backend", sc.Storage.Backend,
		"retention", sc.Storage.Retention,
		"machine_ttl", sc.Machines.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Alert store plus retention sweep.
	alertStore, err := store.Open(sc.Storage)
	if err != nil {
		slog.Error("failed to open alert store", "backend", sc.Storage.Backend, "err", err)
		os.Exit(1)
	}
	defer alertStore.Close()
	go store.NewSweeper(alertStore, sc.Storage.Retention, sc.Storage.SweepInterval).Run(ctx)

	// Fleet view with background TTL eviction.
	machines := store.NewMachines(sc.Machines.TTL)
	go machines.Run(ctx)

	// Alert engine with webhook and broker notifiers.
	var notifiers []alerts.Notifier
	for _, w := range alerts.NewWebhooks(sc.Alerts.Webhooks) {
		notifiers = append(notifiers, w)
	}
	if url := sc.Alerts.AMQP.URL(); url != "" {
		pub := alerts.NewAMQPPublisher(url, sc.Alerts.AMQP.Exchange)
		defer pub.Close()
		notifiers = append(notifiers, pub)
		slog.Info("publishing alert events", "exchange", sc.Alerts.AMQP.Exchange)
	}
	engine := alerts.New(alertStore, sc.Alerts.Thresholds, notifiers...)

	// gRPC receiver with optional API key authentication.
	checker := auth.NewChecker(sc.Auth)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(checker.UnaryInterceptor()))
	rpc.RegisterSnapshotServer(grpcSrv, receiver.New(machines, alertStore, engine))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC receiver listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	deps := api.Deps{
		Machines:   machines,
		Alerts:     alertStore,
		Scorer:     risk.NewService(alertStore, sc.Alerts.Thresholds.RiskCeiling),
		Resolver:   engine,
		Thresholds: sc.Alerts.Thresholds,
	}

	hub := ws.New(deps, *streamInterval)
	go hub.Run(ctx)

	// Combined HTTP server: REST API, WebSocket hub and metrics on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", checker.Middleware(api.New(deps)))
	httpMux.Handle("/ws/stream", checker.Middleware(hub))
	httpMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("healthwatch-server shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	grpcSrv.GracefulStop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	drained := make(chan struct{})
	go func() {
		engine.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		slog.Warn("shutdown: pending notifications abandoned")
	}
}

func parseLevel(s string) slog.Level {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		s = env
	}
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
