// Package host is the relay between one-shot command-line clients and the
// long-running controller's native port.
//
// The controller dials the host's controller socket and speaks native
// framing on it. Clients dial the client socket and write one JSON value
// (or bare text) per line; each line is forwarded as {"msg": <value>} and
// the controller's next reply is written back on the same line-oriented
// connection.
package host

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/native"
)

var (
	// ErrNoController is returned when a request arrives and no controller is attached.
	ErrNoController = errors.New("no controller connected")
	// ErrReplyTimeout is returned when the controller does not answer in time.
	ErrReplyTimeout = errors.New("timed out waiting for controller reply")
)

type controller struct {
	port    *native.StreamPort
	replies chan []byte
	done    chan struct{}
}

// Host accepts one controller at a time and any number of clients.
type Host struct {
	cfg      config.HostConfig
	maxBytes int
	timeout  time.Duration

	mu      sync.Mutex
	current *controller

	// requests are forwarded one at a time; replies carry no correlation id.
	reqMu sync.Mutex

	wg sync.WaitGroup
}

func New(cfg config.HostConfig, maxBytes int) *Host {
	return &Host{
		cfg:      cfg,
		maxBytes: maxBytes,
		timeout:  cfg.ReplyTimeoutDuration(),
	}
}

// Serve listens on both sockets until ctx is cancelled.
func (h *Host) Serve(ctx context.Context) error {
	ctrlLn, err := listenUnix(h.cfg.SocketPath)
	if err != nil {
		return err
	}
	clientLn, err := listenUnix(h.cfg.ClientSocketPath)
	if err != nil {
		ctrlLn.Close()
		return err
	}
	return h.ServeListeners(ctx, ctrlLn, clientLn)
}

// ServeListeners runs the host on already-open listeners.
func (h *Host) ServeListeners(ctx context.Context, ctrlLn, clientLn net.Listener) error {
	log.Printf("relay host listening: controller=%s client=%s", ctrlLn.Addr(), clientLn.Addr())

	errCh := make(chan error, 2)
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		errCh <- h.acceptLoop(ctx, ctrlLn, h.attachController)
	}()
	go func() {
		defer h.wg.Done()
		errCh <- h.acceptLoop(ctx, clientLn, h.serveClient)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	ctrlLn.Close()
	clientLn.Close()
	h.mu.Lock()
	if h.current != nil {
		h.current.port.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return err
}

func (h *Host) acceptLoop(ctx context.Context, ln net.Listener, serve func(context.Context, net.Conn)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			serve(ctx, conn)
		}()
	}
}

// attachController makes conn the current controller, replacing any older one.
func (h *Host) attachController(_ context.Context, conn net.Conn) {
	c := &controller{
		port:    native.NewConnPort(conn, native.LengthPrefixed{Max: h.maxBytes}),
		replies: make(chan []byte, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	old := h.current
	h.current = c
	h.mu.Unlock()
	if old != nil {
		log.Printf("controller %s replaced by %s", old.port.ID(), c.port.ID())
		old.port.Close()
	} else {
		log.Printf("controller %s attached", c.port.ID())
	}

	defer close(c.done)
	for {
		msg, err := c.port.Receive()
		if err != nil {
			h.mu.Lock()
			if h.current == c {
				h.current = nil
			}
			h.mu.Unlock()
			c.port.Close()
			if !errors.Is(err, native.ErrClosed) {
				log.Printf("controller %s detached: %v", c.port.ID(), err)
			}
			return
		}
		select {
		case c.replies <- msg:
		default:
			log.Printf("dropping unsolicited reply from controller %s: %s", c.port.ID(), truncate(msg, 200))
		}
	}
}

func (h *Host) serveClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	codec := native.Lines{Max: h.maxBytes}
	r := bufio.NewReader(conn)
	for {
		line, err := codec.ReadMessage(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("client read: %v", err)
			}
			return
		}
		reply, err := h.Forward(ctx, line)
		if err != nil {
			log.Printf("forward %s: %v", truncate(line, 200), err)
			reply = errorLine(err)
		}
		if err := codec.WriteMessage(conn, reply); err != nil {
			log.Printf("client write: %v", err)
			return
		}
	}
}

// Forward wraps one client line, sends it to the controller and waits for the reply.
func (h *Host) Forward(ctx context.Context, line []byte) ([]byte, error) {
	msg, err := Wrap(line)
	if err != nil {
		return nil, err
	}

	h.reqMu.Lock()
	defer h.reqMu.Unlock()

	h.mu.Lock()
	c := h.current
	h.mu.Unlock()
	if c == nil {
		return nil, ErrNoController
	}

	// A reply that arrived after an earlier timeout belongs to nobody.
	select {
	case stale := <-c.replies:
		log.Printf("discarding stale reply: %s", truncate(stale, 200))
	default:
	}

	if err := c.port.Send(msg); err != nil {
		return nil, fmt.Errorf("send to controller %s: %w", c.port.ID(), err)
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case reply := <-c.replies:
		return reply, nil
	case <-c.done:
		return nil, ErrNoController
	case <-timer.C:
		return nil, ErrReplyTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Connected reports whether a controller is attached.
func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Wrap turns a client line into the {"msg": ...} envelope. Text that is not
// valid JSON is sent as a JSON string.
func Wrap(line []byte) ([]byte, error) {
	var payload json.RawMessage
	if json.Valid(line) {
		payload = line
	} else {
		quoted, err := json.Marshal(string(line))
		if err != nil {
			return nil, err
		}
		payload = quoted
	}
	return json.Marshal(struct {
		Msg json.RawMessage `json:"msg"`
	}{Msg: payload})
}

func errorLine(err error) []byte {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return out
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
