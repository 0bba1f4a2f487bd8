package apdu

import (
	"context"
	"sync"
	"time"

	"github.com/mrz1836/warden/internal/metrics"
)

// Link carries whole APDU messages to a device.
type Link interface {
	WriteMessage(msg []byte) error
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// Exchanger sends a command and returns the device response.
type Exchanger interface {
	Exchange(ctx context.Context, cmd Command) (Response, error)
}

// Logger receives exchange diagnostics.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Device serializes exchanges over a Link. A write and its matching read are
// never interleaved with another exchange. Nothing is retried here; locked
// and denied conditions are surfaced to the caller.
type Device struct {
	mu     sync.Mutex
	link   Link
	logger Logger
}

// NewDevice wraps link. A nil logger discards diagnostics.
func NewDevice(link Link, logger Logger) *Device {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Device{link: link, logger: logger}
}

// Exchange performs one command/response round trip. A non-OK status word is
// not an error here; callers inspect Response.Err.
func (d *Device) Exchange(ctx context.Context, cmd Command) (Response, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return Response{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	d.logger.Debug("apdu: -> %s", cmd)
	if err := d.link.WriteMessage(raw); err != nil {
		metrics.RecordExchange(cmd.INS, 0, time.Since(start))
		d.logger.Error("apdu: write failed: %v", err)
		return Response{}, err
	}

	reply, err := d.link.ReadMessage(ctx)
	if err != nil {
		metrics.RecordExchange(cmd.INS, 0, time.Since(start))
		d.logger.Error("apdu: read failed: %v", err)
		return Response{}, err
	}

	resp, err := ParseResponse(reply)
	if err != nil {
		metrics.RecordExchange(cmd.INS, 0, time.Since(start))
		return Response{}, err
	}
	metrics.RecordExchange(cmd.INS, resp.SW, time.Since(start))
	d.logger.Debug("apdu: <- SW=0x%04x len=%d", resp.SW, len(resp.Data))
	return resp, nil
}

// Close closes the underlying link. It does not wait for a pending exchange;
// closing the link is what fails its read.
func (d *Device) Close() error {
	return d.link.Close()
}
