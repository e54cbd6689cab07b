package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// MaxFrameSize bounds a single frame payload. Submissions are capped at
// 50 MiB by the broker; sealed reports stay within the same order.
const MaxFrameSize = 256 * 1024 * 1024

// Framed wraps a connection with length-delimited framing: a 4-byte
// big-endian unsigned length prefix followed by the payload.
type Framed struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// NewFramed wraps conn in the frame codec.
func NewFramed(conn net.Conn) *Framed {
	return &Framed{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

// Send writes one frame and flushes.
func (f *Framed) Send(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := f.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := f.w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	if err := f.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Recv reads one full frame. An EOF mid-frame is an error: the bridge
// treats it as a lost transport.
func (f *Framed) Recv() ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(f.r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read frame prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Close closes the underlying connection.
func (f *Framed) Close() error {
	return f.conn.Close()
}
