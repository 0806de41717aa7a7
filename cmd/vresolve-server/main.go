package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guiyumin/vresolve/internal/core/config"
	"github.com/guiyumin/vresolve/internal/core/resolver"
	"github.com/guiyumin/vresolve/internal/core/version"
	"github.com/guiyumin/vresolve/internal/server"
)

func main() {
	port := flag.Int("port", 0, "HTTP listen port (default: 8080)")
	output := flag.String("output", "", "output directory for transfers")
	configPath := flag.String("config", "", "config file (default: ~/.config/vresolve/config.yml)")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vresolve-server %s\n", version.Version)
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// flag > env > config > default
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *output != "" {
		cfg.OutputDir = *output
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = config.DefaultDownloadDir()
	}

	svc, err := resolver.New(cfg)
	if err != nil {
		slog.Error("failed to build resolver", "error", err)
		os.Exit(1)
	}
	srv := server.NewServer(cfg, svc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case config.Exists():
		cfg, err = config.Load()
	default:
		slog.Warn("config file not found, using defaults", "hint", "run 'vresolve init'")
		cfg = config.DefaultConfig()
	}
	if err != nil {
		return nil, err
	}
	return cfg, cfg.ApplyEnv()
}
