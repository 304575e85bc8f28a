// Package connection owns the single live native port: it dials, listens,
// serializes message handling and reconnects lazily on wake triggers.
package connection

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/native"
)

// State of the managed connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler turns one inbound message into the outbound payload. msg is nil
// when the peer sent a frame over the size limit.
type Handler func(ctx context.Context, msg []byte) []byte

// Manager holds at most one live port.
type Manager struct {
	dial    native.Dialer
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	reconnectMu sync.Mutex
	handleMu    sync.Mutex

	mu          sync.RWMutex
	state       State
	current     native.Port
	connectedAt time.Time
	handled     int

	wg sync.WaitGroup
}

func NewManager(dial native.Dialer, handler Handler) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dial:    dial,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the live port, or nil when disconnected.
func (m *Manager) Current() native.Port {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	State       string    `json:"state"`
	PortID      string    `json:"port_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	Handled     int       `json:"handled"`
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{State: m.state.String(), Handled: m.handled}
	if m.current != nil {
		snap.PortID = m.current.ID()
		snap.ConnectedAt = m.connectedAt
	}
	return snap
}

// Reconnect closes any existing port and dials a fresh one. Calls are
// serialized, so back-to-back triggers leave exactly one live port.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	if err := m.ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	old := m.current
	m.current = nil
	m.state = Connecting
	m.mu.Unlock()

	if old != nil {
		log.Printf("closing native port %s before reconnect", old.ID())
		if err := old.Close(); err != nil {
			log.Printf("close native port %s: %v", old.ID(), err)
		}
	}

	port, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = Disconnected
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.current = port
	m.state = Connected
	m.connectedAt = time.Now()
	m.mu.Unlock()

	log.Printf("native port %s connected", port.ID())
	m.wg.Add(1)
	go m.listen(port)
	return nil
}

func (m *Manager) listen(port native.Port) {
	defer m.wg.Done()
	for {
		msg, err := port.Receive()
		if errors.Is(err, native.ErrTooLarge) {
			// The oversized frame was consumed; answer it as malformed.
			log.Printf("native port %s: %v", port.ID(), err)
			m.deliver(nil)
			continue
		}
		if err != nil {
			m.dropped(port, err)
			return
		}
		m.deliver(msg)
	}
}

func (m *Manager) dropped(port native.Port, err error) {
	m.mu.Lock()
	wasCurrent := m.current == port
	if wasCurrent {
		m.current = nil
		m.state = Disconnected
	}
	m.mu.Unlock()

	_ = port.Close()
	switch {
	case !wasCurrent, errors.Is(err, native.ErrClosed):
		// Replaced or shut down locally.
	case errors.Is(err, io.EOF):
		log.Printf("native port %s disconnected by peer", port.ID())
	default:
		log.Printf("native port %s failed: %v", port.ID(), err)
	}
}

func (m *Manager) deliver(msg []byte) {
	m.handleMu.Lock()
	out := m.handler(m.ctx, msg)
	m.handleMu.Unlock()

	m.mu.Lock()
	m.handled++
	m.mu.Unlock()

	port := m.Current()
	if port == nil {
		log.Printf("no native port; dropping reply")
		return
	}
	if err := port.Send(out); err != nil {
		log.Printf("send on native port %s: %v", port.ID(), err)
	}
}

// Run connects once, then reconnects on each wake while disconnected,
// until ctx is done.
func (m *Manager) Run(ctx context.Context, wake <-chan struct{}) {
	if err := m.Reconnect(ctx); err != nil {
		log.Printf("initial connect failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if m.State() != Disconnected {
				continue
			}
			if err := m.Reconnect(ctx); err != nil {
				log.Printf("reconnect failed: %v", err)
			}
		}
	}
}

// Close shuts down the current port and waits for its listener to exit.
func (m *Manager) Close() {
	m.cancel()
	m.reconnectMu.Lock()
	m.mu.Lock()
	port := m.current
	m.current = nil
	m.state = Disconnected
	m.mu.Unlock()
	m.reconnectMu.Unlock()

	if port != nil {
		_ = port.Close()
	}
	m.wg.Wait()
}

// Triggers merges a periodic tick and an OS signal channel into wake
// events. every <= 0 disables the tick; sig may be nil.
func Triggers(ctx context.Context, every time.Duration, sig <-chan os.Signal) <-chan struct{} {
	out := make(chan struct{}, 1)
	var tick <-chan time.Time
	if every > 0 {
		ticker := time.NewTicker(every)
		tick = ticker.C
		go func() {
			<-ctx.Done()
			ticker.Stop()
		}()
	}
	notify := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				notify()
			case s := <-sig:
				log.Printf("wake on %v", s)
				notify()
			}
		}
	}()
	return out
}
