package host

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/actions"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/browser"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/connection"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/dispatch"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/native"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/profile"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"focus":{"title":"x"}}`, `{"msg":{"focus":{"title":"x"}}}`},
		{`"help"`, `{"msg":"help"}`},
		{`help`, `{"msg":"help"}`},
		{`focus gmail`, `{"msg":"focus gmail"}`},
		{`42`, `{"msg":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Wrap([]byte(tt.in))
			if err != nil {
				t.Fatalf("Wrap: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// shortTempDir keeps unix socket paths under the platform length limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tf")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func startHost(t *testing.T, timeout string) (*Host, config.HostConfig) {
	t.Helper()
	dir := shortTempDir(t)
	cfg := config.HostConfig{
		SocketPath:       filepath.Join(dir, "ctl.sock"),
		ClientSocketPath: filepath.Join(dir, "cli.sock"),
		ReplyTimeout:     timeout,
	}
	h := New(cfg, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("host did not shut down")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(cfg.ClientSocketPath); err == nil {
			return h, cfg
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("host sockets never appeared")
	return nil, cfg
}

func waitConnected(t *testing.T, h *Host, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Connected() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected Connected() == %v", want)
}

func TestForwardWithoutController(t *testing.T) {
	h, cfg := startHost(t, "1s")
	if _, err := h.Forward(context.Background(), []byte("help")); !errors.Is(err, ErrNoController) {
		t.Errorf("expected ErrNoController, got %v", err)
	}

	reply, err := Converse(context.Background(), cfg.ClientSocketPath, "help", time.Second)
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if !strings.Contains(string(reply), ErrNoController.Error()) {
		t.Errorf("expected error line, got %s", reply)
	}
}

func TestRelayToController(t *testing.T) {
	h, cfg := startHost(t, "2s")

	b := browser.NewMemoryBrowser(browser.Window{ID: 1, Tabs: []browser.Tab{
		{ID: "A", Title: "Gmail - Inbox", URL: "https://a"},
	}})
	d := dispatch.New(b, profile.NewGate(profile.NewMemoryStore("work"), "default"), actions.NewExecutor(b))
	dial, err := native.NewDialer(config.NativeConfig{Transport: config.TransportUnix, SocketPath: cfg.SocketPath})
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	m := connection.NewManager(dial, d.Handle)
	defer m.Close()
	if err := m.Reconnect(context.Background()); err != nil {
		t.Fatalf("controller connect: %v", err)
	}
	waitConnected(t, h, true)

	for _, message := range []string{"help", `"help"`} {
		reply, err := Converse(context.Background(), cfg.ClientSocketPath, message, 2*time.Second)
		if err != nil {
			t.Fatalf("Converse %s: %v", message, err)
		}
		inner, err := dispatch.Unframe(reply)
		if err != nil {
			t.Fatalf("unframe %s: %v", reply, err)
		}
		var r map[string]interface{}
		if err := json.Unmarshal(inner, &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if r["profile"] != "work" {
			t.Errorf("expected profile work, got %v", r["profile"])
		}
		if _, ok := r["reply"].(map[string]interface{}); !ok {
			t.Errorf("expected help payload, got %v", r["reply"])
		}
	}
}

func TestReplyTimeout(t *testing.T) {
	h, cfg := startHost(t, "50ms")

	// A controller that reads but never answers.
	port, err := native.DialUnix(context.Background(), cfg.SocketPath, 0)
	if err != nil {
		t.Fatalf("DialUnix: %v", err)
	}
	defer port.Close()
	go func() {
		for {
			if _, err := port.Receive(); err != nil {
				return
			}
		}
	}()
	waitConnected(t, h, true)

	if _, err := h.Forward(context.Background(), []byte("help")); !errors.Is(err, ErrReplyTimeout) {
		t.Errorf("expected ErrReplyTimeout, got %v", err)
	}
}

func TestControllerReplacement(t *testing.T) {
	h, cfg := startHost(t, "1s")

	first, err := native.DialUnix(context.Background(), cfg.SocketPath, 0)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer first.Close()
	waitConnected(t, h, true)

	second, err := native.DialUnix(context.Background(), cfg.SocketPath, 0)
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer second.Close()

	// The first controller is hung up on once the second attaches.
	if _, err := first.Receive(); err == nil {
		t.Error("expected the replaced controller to be disconnected")
	}

	go func() {
		msg, err := second.Receive()
		if err != nil {
			return
		}
		_ = second.Send(msg)
	}()
	reply, err := h.Forward(context.Background(), []byte("ping"))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(reply) != `{"msg":"ping"}` {
		t.Errorf("expected echo from the second controller, got %s", reply)
	}

	_ = second.Close()
	waitConnected(t, h, false)
}
