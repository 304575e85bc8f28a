// Package native implements the native-messaging port: a persistent,
// message-framed, bidirectional channel to the external peer.
package native

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
)

// ErrClosed is returned by operations on a port that has been closed locally.
var ErrClosed = errors.New("native port closed")

// Port is one live native-messaging channel.
type Port interface {
	// ID identifies the port in logs.
	ID() string
	// Receive blocks until the next inbound message. io.EOF means the peer hung up.
	Receive() ([]byte, error)
	// Send writes one outbound message.
	Send(msg []byte) error
	// Close tears the port down. It is safe to call more than once.
	Close() error
}

// Dialer opens a new Port.
type Dialer func(ctx context.Context) (Port, error)

// StreamPort frames messages over a byte stream.
type StreamPort struct {
	id     string
	r      *bufio.Reader
	w      io.Writer
	codec  Codec
	closer func() error

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewStreamPort frames messages on r/w with codec. closer is called once on Close.
func NewStreamPort(r io.Reader, w io.Writer, codec Codec, closer func() error) *StreamPort {
	if closer == nil {
		closer = func() error { return nil }
	}
	return &StreamPort{
		id:     uuid.NewString(),
		r:      bufio.NewReader(r),
		w:      w,
		codec:  codec,
		closer: closer,
		closed: make(chan struct{}),
	}
}

func (p *StreamPort) ID() string { return p.id }

func (p *StreamPort) Receive() ([]byte, error) {
	msg, err := p.codec.ReadMessage(p.r)
	if err != nil {
		select {
		case <-p.closed:
			return nil, ErrClosed
		default:
		}
		return nil, err
	}
	return msg, nil
}

func (p *StreamPort) Send(msg []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.codec.WriteMessage(p.w, msg)
}

func (p *StreamPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.closeErr = p.closer()
	})
	return p.closeErr
}

// Closed reports whether Close has been called.
func (p *StreamPort) Closed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// NewConnPort frames messages over a net.Conn.
func NewConnPort(conn net.Conn, codec Codec) *StreamPort {
	return NewStreamPort(conn, conn, codec, conn.Close)
}

// DialUnix connects to a relay host listening on a unix socket.
func DialUnix(ctx context.Context, path string, maxBytes int) (*StreamPort, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return NewConnPort(conn, LengthPrefixed{Max: maxBytes}), nil
}

// NewDialer builds the Dialer selected by cfg.
func NewDialer(cfg config.NativeConfig) (Dialer, error) {
	limit := cfg.MessageLimit()
	switch cfg.Transport {
	case config.TransportStdio, "":
		return StdioDialer(os.Stdin, os.Stdout, limit), nil
	case config.TransportUnix:
		path := cfg.SocketPath
		return func(ctx context.Context) (Port, error) {
			return DialUnix(ctx, path, limit)
		}, nil
	case config.TransportWebSocket:
		url := cfg.WebSocketURL
		return func(ctx context.Context) (Port, error) {
			return DialWebSocket(ctx, url, limit)
		}, nil
	default:
		return nil, fmt.Errorf("unknown native transport %q", cfg.Transport)
	}
}

// StdioDialer hands out a single port over the process's standard streams,
// the way a browser-launched native host talks. Once that port is closed,
// stdin is gone and later dials fail. Closing the port closes in when it
// is an io.Closer, which unblocks a pending Receive.
func StdioDialer(in io.Reader, out io.Writer, maxBytes int) Dialer {
	var mu sync.Mutex
	var used bool
	return func(ctx context.Context) (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		if used {
			return nil, errors.New("stdio port cannot be reopened")
		}
		used = true
		var closer func() error
		if c, ok := in.(io.Closer); ok {
			closer = c.Close
		}
		return NewStreamPort(in, out, LengthPrefixed{Max: maxBytes}, closer), nil
	}
}
