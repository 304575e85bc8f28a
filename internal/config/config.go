package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level tabsfinder config.
	WorkspaceDirName = ".tabsfinder"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10

	// DefaultHostName is the native-messaging host identifier registered with the browser.
	DefaultHostName = "com.matthewfallshaw.chrometabsfinder"
	// DefaultProfile is the profile assumed when the settings store holds none.
	DefaultProfile = "default"
)

// Transport names accepted by native.transport.
const (
	TransportStdio     = "stdio"
	TransportUnix      = "unix"
	TransportWebSocket = "websocket"
)

// Config captures all tunable settings for the tabs finder controller and its relay host.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Browser  BrowserConfig  `yaml:"browser"`
	Native   NativeConfig   `yaml:"native"`
	Settings SettingsConfig `yaml:"settings"`
	MCP      MCPConfig      `yaml:"mcp"`
	Status   StatusConfig   `yaml:"status"`
	Host     HostConfig     `yaml:"host"`
}

type ServerConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	HostName      string `yaml:"host_name"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// Headless controls whether a launched Chrome runs headless (default: false, tabs are meant to be seen).
	Headless *bool `yaml:"headless"`
	// Timeout for attaching to the browser (e.g., "10s").
	AttachTimeout string `yaml:"attach_timeout"`
}

// NativeConfig selects the transport for the native-messaging port.
type NativeConfig struct {
	// Transport is one of stdio, unix, websocket.
	Transport string `yaml:"transport"`
	// SocketPath is dialled for the unix transport.
	SocketPath string `yaml:"socket_path"`
	// WebSocketURL is dialled for the websocket transport.
	WebSocketURL string `yaml:"websocket_url"`
	// WakeInterval periodically re-establishes a dropped port (e.g., "30s"). Empty disables it.
	WakeInterval string `yaml:"wake_interval"`
	// MaxMessageBytes caps a single inbound frame.
	MaxMessageBytes int `yaml:"max_message_bytes"`
}

// SettingsConfig locates the durable key-value settings store.
type SettingsConfig struct {
	StorePath      string `yaml:"store_path"`
	DefaultProfile string `yaml:"default_profile"`
	// DefaultSearch is the descriptor used by -focus-default, as raw JSON.
	DefaultSearch string `yaml:"default_search"`
}

type MCPConfig struct {
	// Enable serves the MCP tool surface over stdio instead of the native port.
	Enable bool `yaml:"enable"`
	// When set, serves MCP over SSE on this port instead of stdio.
	SSEPort int `yaml:"sse_port"`
}

// StatusConfig configures the optional HTTP status and settings surface.
type StatusConfig struct {
	// Addr to listen on (e.g., "127.0.0.1:7878"). Empty disables the server.
	Addr string `yaml:"addr"`
}

// HostConfig configures the relay host that the controller connects to.
type HostConfig struct {
	SocketPath       string `yaml:"socket_path"`
	ClientSocketPath string `yaml:"client_socket_path"`
	ReplyTimeout     string `yaml:"reply_timeout"`
	LogFile          string `yaml:"log_file"`
}

// DefaultConfig provides reasonable defaults for a single-user desktop.
func DefaultConfig() Config {
	tmp := os.TempDir()
	return Config{
		Server: ServerConfig{
			Name:          "chrome-tabs-finder",
			Version:       "0.3.0",
			HostName:      DefaultHostName,
			LogFile:       filepath.Join(tmp, "chrometabsfinder.log"),
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
		},
		Browser: BrowserConfig{
			DebuggerURL:   "ws://127.0.0.1:9222",
			AttachTimeout: "10s",
		},
		Native: NativeConfig{
			Transport:       TransportStdio,
			SocketPath:      filepath.Join(tmp, "chrometabsfinder.sock"),
			WakeInterval:    "",
			MaxMessageBytes: 1 << 20,
		},
		Settings: SettingsConfig{
			StorePath:      "settings.json",
			DefaultProfile: DefaultProfile,
		},
		Host: HostConfig{
			SocketPath:       filepath.Join(tmp, "chrometabsfinder.sock"),
			ClientSocketPath: filepath.Join(tmp, "chrometabsfinder.client.sock"),
			ReplyTimeout:     "60s",
			LogFile:          filepath.Join(tmp, "chrometabsfinder-host.log"),
		},
	}
}

// Load reads YAML config from disk, overlays defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .tabsfinder/config.yaml file.
// Returns the workspace root directory (parent of .tabsfinder/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .tabsfinder/config.yaml <- explicit -config <- .env / TABSFINDER_* env
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig, startDir string) (Config, string, error) {
	cfg := DefaultConfig()

	wsDir, err := DiscoverWorkspace(startDir)
	if err != nil {
		return cfg, "", fmt.Errorf("discovering workspace: %w", err)
	}

	if wsDir != "" {
		wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
		raw, err := os.ReadFile(wsConfigPath)
		if err != nil {
			return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
		}
		cfg = resolveWorkspacePaths(cfg, wsDir)
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	if err := godotenv.Load(); err != nil {
		// A missing .env is the common case.
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("ignoring .env: %v", err)
		}
	}
	cfg.ApplyEnv()

	return cfg, wsDir, cfg.Validate()
}

// ApplyEnv overrides file values with TABSFINDER_* environment variables.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Server.LogFile, "TABSFINDER_LOG_FILE")
	setString(&c.Server.HostName, "TABSFINDER_HOST_NAME")
	setString(&c.Browser.DebuggerURL, "TABSFINDER_DEBUGGER_URL")
	setString(&c.Native.Transport, "TABSFINDER_TRANSPORT")
	setString(&c.Native.SocketPath, "TABSFINDER_SOCKET_PATH")
	setString(&c.Native.WebSocketURL, "TABSFINDER_WEBSOCKET_URL")
	setString(&c.Native.WakeInterval, "TABSFINDER_WAKE_INTERVAL")
	setString(&c.Settings.StorePath, "TABSFINDER_SETTINGS")
	setString(&c.Status.Addr, "TABSFINDER_STATUS_ADDR")
	setString(&c.Host.SocketPath, "TABSFINDER_HOST_SOCKET")
	setString(&c.Host.ClientSocketPath, "TABSFINDER_CLIENT_SOCKET")

	if v := os.Getenv("TABSFINDER_MCP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MCP.Enable = b
		}
	}
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Settings.StorePath = resolve(cfg.Settings.StorePath)
	cfg.Native.SocketPath = resolve(cfg.Native.SocketPath)
	cfg.Host.SocketPath = resolve(cfg.Host.SocketPath)
	cfg.Host.ClientSocketPath = resolve(cfg.Host.ClientSocketPath)
	cfg.Host.LogFile = resolve(cfg.Host.LogFile)
	return cfg
}

// Validate ensures required fields exist so the controller can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Server.HostName == "" {
		return errors.New("server.host_name is required")
	}
	if c.Settings.StorePath == "" {
		return errors.New("settings.store_path is required")
	}
	switch c.Native.Transport {
	case TransportStdio:
	case TransportUnix:
		if c.Native.SocketPath == "" {
			return errors.New("native.socket_path is required for the unix transport")
		}
	case TransportWebSocket:
		if c.Native.WebSocketURL == "" {
			return errors.New("native.websocket_url is required for the websocket transport")
		}
	default:
		return fmt.Errorf("native.transport %q is not one of stdio, unix, websocket", c.Native.Transport)
	}
	if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
		return errors.New("browser.debugger_url or browser.launch must be provided")
	}
	return nil
}

// AttachTimeoutDuration returns the parsed attach timeout with a sane default.
func (b BrowserConfig) AttachTimeoutDuration() time.Duration {
	return parseDurationOr(b.AttachTimeout, 10*time.Second)
}

// IsHeadless returns whether a launched Chrome should run headless (default: false).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// WakeEvery returns the wake interval, or zero when periodic wake is disabled.
func (n NativeConfig) WakeEvery() time.Duration {
	return parseDurationOr(n.WakeInterval, 0)
}

// MessageLimit returns the inbound frame cap with a sane default.
func (n NativeConfig) MessageLimit() int {
	if n.MaxMessageBytes <= 0 {
		return 1 << 20
	}
	return n.MaxMessageBytes
}

// Profile returns the default profile name, falling back to DefaultProfile.
func (s SettingsConfig) Profile() string {
	if s.DefaultProfile == "" {
		return DefaultProfile
	}
	return s.DefaultProfile
}

// ReplyTimeoutDuration returns how long the relay host waits for a controller reply.
func (h HostConfig) ReplyTimeoutDuration() time.Duration {
	return parseDurationOr(h.ReplyTimeout, 60*time.Second)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
