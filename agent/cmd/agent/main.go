package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/healthwatch/healthwatch/agent/internal/config"
	"github.com/healthwatch/healthwatch/agent/internal/monitor"
	"github.com/healthwatch/healthwatch/agent/internal/probe"
	"github.com/healthwatch/healthwatch/agent/internal/shipper"
	"github.com/healthwatch/healthwatch/agent/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single forced check-and-send cycle and exit")
	printOnly := flag.Bool("print", false, "run the checks, print the snapshot JSON and exit without sending")
	flag.Parse()

	// A missing .env is normal; values already in the environment win.
	_ = godotenv.Load()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("healthwatch-agent starting", "config", *configPath, "platform", runtime.GOOS)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.Agent.LogLevel))
	slog.Info("config loaded",
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"interval", cfg.Agent.Interval,
		"heartbeat", cfg.Agent.Heartbeat,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prober := probe.For(runtime.GOOS, probe.NewRunner(cfg.Agent.CommandTimeout))
	builder := snapshot.New(prober, cfg.Agent.MachineID)

	if *printOnly {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(builder.Build(ctx)); err != nil {
			slog.Error("failed to encode snapshot", "err", err)
			os.Exit(1)
		}
		return
	}

	ship := shipper.New(cfg.Agent)
	defer ship.Close()

	mon := monitor.New(builder, ship, cfg.Agent.Interval, cfg.Agent.Heartbeat)

	if *once {
		if out := mon.ForceSend(ctx); out.Err != nil {
			os.Exit(1)
		}
		return
	}

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(parseLevel(updated.Agent.LogLevel))
			mon.SetInterval(updated.Agent.Interval)
			mon.SetHeartbeat(updated.Agent.Heartbeat)
			slog.Info("config hot-reloaded",
				"interval", updated.Agent.Interval,
				"heartbeat", updated.Agent.Heartbeat)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Manual trigger: each signal runs one cycle, serialized with the schedule.
	go func() {
		trigger := manualTrigger()
		for {
			select {
			case <-ctx.Done():
				return
			case <-trigger:
				slog.Info("manual check triggered")
				mon.RunNow(ctx)
			}
		}
	}()

	mon.Run(ctx)
	slog.Info("healthwatch-agent shutting down")
}

// parseLevel maps a config level name to slog. LOG_LEVEL overrides it.
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
