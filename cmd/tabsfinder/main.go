package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/actions"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/browser"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/connection"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/dispatch"
	mcpserver "github.com/matthewfallshaw/chrome-tabs-finder/internal/mcp"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/native"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/profile"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/search"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/status"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (layered over .tabsfinder/config.yaml)")
	setProfile := flag.String("set-profile", "", "Store a new active profile name and exit")
	focusDefault := flag.Bool("focus-default", false, "Run the configured default search once and exit")
	ssePort := flag.Int("sse-port", 0, "Optional MCP SSE port override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cwd, _ := os.Getwd()
	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, cwd)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.Enable = true
		cfg.MCP.SSEPort = *ssePort
	}

	closer := setupLogging(cfg.Server)
	defer closer.Close()
	if wsDir != "" {
		log.Printf("using workspace %s", wsDir)
	}

	store := profile.NewFileStore(cfg.Settings.StorePath, cfg.Settings.Profile())
	if *setProfile != "" {
		if err := store.Set(ctx, *setProfile); err != nil {
			log.Fatalf("failed to set profile: %v", err)
		}
		fmt.Printf("profile set to %q in %s\n", *setProfile, store.Path())
		return
	}

	rb := browser.NewRodBrowser(cfg.Browser)
	if err := rb.Start(ctx); err != nil {
		log.Fatalf("failed to attach to browser: %v", err)
	}
	defer func() {
		if err := rb.Shutdown(); err != nil {
			log.Printf("browser shutdown: %v", err)
		}
	}()

	exec := actions.NewExecutor(rb)
	dispatcher := dispatch.New(rb, profile.NewGate(store, cfg.Settings.Profile()), exec)

	if *focusDefault {
		if err := runDefaultSearch(ctx, cfg.Settings, dispatcher); err != nil {
			log.Fatalf("default search: %v", err)
		}
		exec.Wait()
		return
	}

	dial, err := native.NewDialer(cfg.Native)
	if err != nil {
		log.Fatalf("failed to configure native port: %v", err)
	}
	manager := connection.NewManager(dial, dispatcher.Handle)

	if cfg.Status.Addr != "" {
		statusServer := status.New(cfg, manager, store)
		go func() {
			log.Printf("status server listening on %s", cfg.Status.Addr)
			if err := statusServer.Start(ctx, cfg.Status.Addr); err != nil {
				log.Printf("status server exited: %v", err)
			}
		}()
	}

	if cfg.MCP.Enable {
		startMCP(ctx, cfg, dispatcher, store)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Printf("starting %s %s (host %s, transport %s)", cfg.Server.Name, cfg.Server.Version, cfg.Server.HostName, cfg.Native.Transport)
	manager.Run(ctx, connection.Triggers(ctx, cfg.Native.WakeEvery(), hup))
	exec.Wait()
}

func startMCP(ctx context.Context, cfg config.Config, dispatcher *dispatch.Dispatcher, store profile.Store) {
	server, err := mcpserver.NewServer(cfg, dispatcher, store)
	if err != nil {
		log.Printf("MCP disabled: %v", err)
		return
	}

	switch {
	case cfg.MCP.SSEPort > 0:
		go func() {
			log.Printf("starting MCP SSE server on port %d", cfg.MCP.SSEPort)
			if err := server.StartSSE(ctx, cfg.MCP.SSEPort); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("MCP SSE server exited: %v", err)
			}
		}()
	case cfg.Native.Transport == config.TransportStdio:
		log.Printf("MCP stdio server unavailable: stdio carries the native port; set mcp.sse_port")
	default:
		go func() {
			log.Printf("starting MCP stdio server")
			if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("MCP stdio server exited: %v", err)
			}
		}()
	}
}

// runDefaultSearch is the toolbar-button action: focus the configured search.
func runDefaultSearch(ctx context.Context, settings config.SettingsConfig, dispatcher *dispatch.Dispatcher) error {
	if settings.DefaultSearch == "" {
		return errors.New("settings.default_search is not configured")
	}
	var desc search.Descriptor
	if err := json.Unmarshal([]byte(settings.DefaultSearch), &desc); err != nil {
		return err
	}
	reply := dispatcher.Dispatch(ctx, dispatch.Command{Kind: dispatch.KindFocus, Search: desc})
	fmt.Println(string(dispatch.Encode(reply)))
	return nil
}

// setupLogging keeps stdout free for native framing. Logs go to a rotating
// file when one is configured, stderr otherwise.
func setupLogging(cfg config.ServerConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		log.SetOutput(os.Stderr)
		log.Printf("log directory unavailable: %v", err)
		return io.NopCloser(nil)
	}
	logWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	log.SetOutput(logWriter)
	return logWriter
}
