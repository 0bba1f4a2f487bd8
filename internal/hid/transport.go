package hid

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// DefaultContinuationTimeout bounds the wait for every packet after the first.
const DefaultContinuationTimeout = time.Second

var (
	// ErrIncompleteResponse is returned when the device stops sending
	// packets before the declared message length was reached.
	ErrIncompleteResponse = fmt.Errorf("%w: incomplete response from device", wardenerr.ErrProtocol)

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hid transport closed")
)

// Device is an open HID handle. Read returns exactly one report per call.
type Device interface {
	io.ReadWriteCloser
}

// Logger receives transport diagnostics. Payloads are never logged.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

type packet struct {
	data []byte
	err  error
}

// Transport exchanges whole messages with a Device. A single goroutine owns
// all reads from the device for the transport's lifetime.
type Transport struct {
	dev     Device
	framer  Framer
	timeout time.Duration
	logger  Logger

	packets   chan packet
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	failed error
}

// Option configures a Transport.
type Option func(*Transport)

// WithPacketSize overrides the HID report size.
func WithPacketSize(n int) Option {
	return func(t *Transport) { t.framer.PacketSize = n }
}

// WithContinuationTimeout overrides DefaultContinuationTimeout.
func WithContinuationTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// WithChannel pins the channel id instead of picking a random one.
func WithChannel(ch uint16) Option {
	return func(t *Transport) { t.framer.Channel = ch }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport starts the reader goroutine on dev. The channel id is random
// and never 0, since 0 is what a locked device answers on.
func NewTransport(dev Device, opts ...Option) (*Transport, error) {
	ch, err := randomChannel()
	if err != nil {
		return nil, fmt.Errorf("choosing channel: %w", err)
	}

	t := &Transport{
		dev:     dev,
		framer:  Framer{Channel: ch, PacketSize: DefaultPacketSize},
		timeout: DefaultContinuationTimeout,
		logger:  nopLogger{},
		packets: make(chan packet, 16),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.framer.PacketSize <= HeaderSize {
		return nil, ErrPacketSize
	}

	go t.readLoop()
	return t, nil
}

func randomChannel() (uint16, error) {
	b, err := wardencrypto.RandomBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b)%0xfffe + 1, nil
}

// Channel returns the channel id used for outgoing packets.
func (t *Transport) Channel() uint16 {
	return t.framer.Channel
}

func (t *Transport) readLoop() {
	for {
		buf := make([]byte, t.framer.PacketSize)
		n, err := t.dev.Read(buf)
		if err == nil && n == 0 {
			continue
		}

		select {
		case t.packets <- packet{data: buf[:n], err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// WriteMessage frames msg and writes every packet. Packets left over from an
// abandoned exchange are discarded first.
func (t *Transport) WriteMessage(msg []byte) error {
	if err := t.err(); err != nil {
		return err
	}
	t.drain()

	pkts, err := t.framer.Packets(msg)
	if err != nil {
		return err
	}
	for _, pkt := range pkts {
		if _, err := t.dev.Write(pkt); err != nil {
			return fmt.Errorf("writing hid packet: %w", err)
		}
	}
	t.logger.Debug("hid: wrote %d bytes in %d packets on channel 0x%04x", len(msg), len(pkts), t.framer.Channel)
	return nil
}

func (t *Transport) drain() {
	for {
		select {
		case p := <-t.packets:
			if p.err != nil {
				t.fail(p.err)
				return
			}
			t.logger.Debug("hid: discarded stale packet")
		default:
			return
		}
	}
}

// ReadMessage reads one complete message. The first packet may take as long
// as the user needs to confirm on the device, so it waits on ctx alone. Every
// later packet must follow within the continuation timeout.
func (t *Transport) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := t.err(); err != nil {
		return nil, err
	}

	r := NewReassembler(t.framer.Channel)
	count := 0
	for !r.Complete() {
		var p packet
		if count == 0 {
			select {
			case p = <-t.packets:
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.done:
				return nil, ErrClosed
			}
		} else {
			timer := time.NewTimer(t.timeout)
			select {
			case p = <-t.packets:
				timer.Stop()
			case <-timer.C:
				t.logger.Error("hid: continuation timeout after %d packets", count)
				return nil, ErrIncompleteResponse
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-t.done:
				timer.Stop()
				return nil, ErrClosed
			}
		}

		if p.err != nil {
			t.fail(p.err)
			return nil, fmt.Errorf("reading hid packet: %w", p.err)
		}
		if err := r.Add(p.data); err != nil {
			return nil, err
		}
		count++
	}

	t.logger.Debug("hid: read %d bytes in %d packets", len(r.Message()), count)
	return r.Message(), nil
}

func (t *Transport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed == nil {
		t.failed = fmt.Errorf("hid device failed: %w", err)
	}
}

func (t *Transport) err() error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Close stops the reader and closes the device.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.dev.Close()
	})
	return err
}
