package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/host"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (layered over .tabsfinder/config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cwd, _ := os.Getwd()
	cfg, _, err := config.LoadWithWorkspace(*configPath, cwd)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	closer := setupLogging(cfg.Host.LogFile, cfg.Server)
	defer closer.Close()

	h := host.New(cfg.Host, cfg.Native.MessageLimit())
	log.Printf("relay host %s starting (pid %d)", cfg.Server.HostName, os.Getpid())
	if err := h.Serve(ctx); err != nil {
		log.Fatalf("relay host exited: %v", err)
	}
	for _, path := range []string{cfg.Host.SocketPath, cfg.Host.ClientSocketPath} {
		_ = os.Remove(path)
	}
}

func setupLogging(path string, server config.ServerConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.SetOutput(os.Stderr)
		log.Printf("log directory unavailable: %v", err)
		return io.NopCloser(nil)
	}
	logWriter := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    server.LogMaxSizeMB,
		MaxBackups: server.LogMaxBackups,
		Compress:   true,
	}
	log.SetOutput(logWriter)
	return logWriter
}
