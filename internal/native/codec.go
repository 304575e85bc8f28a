package native

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned for a frame that exceeds the configured limit.
var ErrTooLarge = errors.New("native message too large")

// Codec reads and writes whole messages on a stream.
type Codec interface {
	ReadMessage(r *bufio.Reader) ([]byte, error)
	WriteMessage(w io.Writer, msg []byte) error
}

// LengthPrefixed is Chrome's native-messaging framing: a 32-bit length in
// native byte order followed by that many bytes of UTF-8 JSON.
type LengthPrefixed struct {
	Max int
}

func (c LengthPrefixed) ReadMessage(r *bufio.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.NativeEndian.Uint32(header[:])
	if c.Max > 0 && int64(n) > int64(c.Max) {
		// Skip the body so the next read starts on a frame boundary.
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, n, c.Max)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return msg, nil
}

func (c LengthPrefixed) WriteMessage(w io.Writer, msg []byte) error {
	if c.Max > 0 && len(msg) > c.Max {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(msg), c.Max)
	}
	buf := make([]byte, 4+len(msg))
	binary.NativeEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[4:], msg)
	_, err := w.Write(buf)
	return err
}

// Lines is newline-delimited JSON, one message per line.
type Lines struct {
	Max int
}

func (c Lines) ReadMessage(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadBytes('\n')
		if c.Max > 0 && len(line) > c.Max {
			return nil, fmt.Errorf("%w: line over %d bytes", ErrTooLarge, c.Max)
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			// A final line without a newline still counts.
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c Lines) WriteMessage(w io.Writer, msg []byte) error {
	if bytes.ContainsRune(msg, '\n') {
		return errors.New("line-framed message must not contain a newline")
	}
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}
