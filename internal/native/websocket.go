package native

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// WebSocketPort carries one message per text frame to a websocket peer.
type WebSocketPort struct {
	id       string
	conn     net.Conn
	maxBytes int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// DialWebSocket connects to a websocket relay at url.
func DialWebSocket(ctx context.Context, url string, maxBytes int) (*WebSocketPort, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &WebSocketPort{
		id:       uuid.NewString(),
		conn:     conn,
		maxBytes: maxBytes,
		closed:   make(chan struct{}),
	}, nil
}

func (p *WebSocketPort) ID() string { return p.id }

func (p *WebSocketPort) Receive() ([]byte, error) {
	for {
		data, op, err := wsutil.ReadServerData(p.conn)
		if err != nil {
			select {
			case <-p.closed:
				return nil, ErrClosed
			default:
			}
			return nil, err
		}
		if op != ws.OpText {
			continue
		}
		if p.maxBytes > 0 && len(data) > p.maxBytes {
			return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), p.maxBytes)
		}
		return data, nil
	}
}

func (p *WebSocketPort) Send(msg []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return wsutil.WriteClientText(p.conn, msg)
}

func (p *WebSocketPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.writeMu.Lock()
		_ = ws.WriteFrame(p.conn, ws.MaskFrameInPlace(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))))
		p.writeMu.Unlock()
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}
