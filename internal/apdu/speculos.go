package apdu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// SpeculosLink talks to the Speculos emulator's APDU port. Messages are
// length prefixed: u32 length | apdu out, u32 length | data | sw in, where the
// inbound length does not count the status word.
type SpeculosLink struct {
	conn net.Conn
	mu   sync.Mutex
}

// DialSpeculos connects to addr (host:port, usually localhost:9999).
func DialSpeculos(ctx context.Context, addr string) (*SpeculosLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to emulator at %s: %w", addr, err)
	}
	return NewSpeculosLink(conn), nil
}

// NewSpeculosLink wraps an established connection.
func NewSpeculosLink(conn net.Conn) *SpeculosLink {
	return &SpeculosLink{conn: conn}
}

// WriteMessage sends one APDU.
func (l *SpeculosLink) WriteMessage(msg []byte) error {
	buf := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(buf, uint32(len(msg))) //nolint:gosec // apdu is bounded
	copy(buf[4:], msg)
	if _, err := l.conn.Write(buf); err != nil {
		return fmt.Errorf("writing to emulator: %w", err)
	}
	return nil
}

// ReadMessage reads one response including its status word. Cancelling ctx
// interrupts a blocked read.
func (l *SpeculosLink) ReadMessage(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = l.conn.SetReadDeadline(dl)
	} else {
		_ = l.conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	var hdr [4]byte
	if _, err := io.ReadFull(l.conn, hdr[:]); err != nil {
		return nil, l.readErr(ctx, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > 0xffff {
		return nil, fmt.Errorf("emulator response length %d is too large", n)
	}

	body := make([]byte, int(n)+2)
	if _, err := io.ReadFull(l.conn, body); err != nil {
		return nil, l.readErr(ctx, err)
	}
	return body, nil
}

func (l *SpeculosLink) readErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return context.DeadlineExceeded
	}
	return fmt.Errorf("reading from emulator: %w", err)
}

// Close closes the connection.
func (l *SpeculosLink) Close() error {
	return l.conn.Close()
}
