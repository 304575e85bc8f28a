package host

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/native"
)

// Converse sends one message to the relay host's client socket and returns
// the reply line.
func Converse(ctx context.Context, socketPath, message string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial relay host %s: %w", socketPath, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	codec := native.Lines{}
	if err := codec.WriteMessage(conn, []byte(message)); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	reply, err := codec.ReadMessage(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
