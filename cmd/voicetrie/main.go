// Command voicetrie is the main entry point for the voicetrie command server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/voicetrie/internal/app"
	"github.com/MrWong99/voicetrie/internal/config"
	"github.com/MrWong99/voicetrie/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration and command files when they change")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicetrie: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicetrie: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voicetrie starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, app.WithLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	application.OnShutdown(func() error { return shutdownTelemetry(context.Background()) })

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(prev, next *config.Config) {
			if err := application.Reload(ctx, prev, next); err != nil {
				slog.Warn("reload incomplete", "err", err)
			}
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		application.OnShutdown(func() error { w.Stop(); return nil })
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        voicetrie: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", orDefault(cfg.Server.ListenAddr, ":8080"))
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	} else {
		printRow("TLS", "(disabled)")
	}
	printRow("Recognizers", orDefault(strings.Join(cfg.Tokenizer.Recognizers, ","), "(none)"))
	printRow("Initial mode", cfg.Dispatch.InitialModeOrDefault())
	printRow("Skip unmatched", fmt.Sprint(cfg.Dispatch.SkipUnmatchedOrDefault()))
	printRow("Command files", fmt.Sprint(len(cfg.Commands.Files)))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	fmt.Println(formatRow(label, value))
}

const rowWidth = 19

// formatRow lays out one summary line. Values longer than the column are cut
// on a rune boundary and marked with an ellipsis.
func formatRow(label, value string) string {
	if r := []rune(value); len(r) > rowWidth {
		value = string(r[:rowWidth-1]) + "…"
	}
	return fmt.Sprintf("║  %-14s  : %-*s ║", label, rowWidth, value)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
