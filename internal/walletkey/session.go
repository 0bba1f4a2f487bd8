package walletkey

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mrz1836/warden/internal/apdu"
	"github.com/mrz1836/warden/internal/hid"
	"github.com/mrz1836/warden/internal/ledger"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Session is an open connection to the Ergo app on one device. Every flow
// runs as a single job on the session queue.
type Session struct {
	Client    *ledger.Client
	Queue     *apdu.Queue
	ProductID uint32

	closer io.Closer
}

// NewSession starts the device queue. closer, if set, is closed before the
// queue is drained so a job stuck on the device fails instead of hanging.
func NewSession(client *ledger.Client, productID uint32, queueSize int, closer io.Closer) *Session {
	return &Session{
		Client:    client,
		Queue:     apdu.NewQueue(queueSize),
		ProductID: productID,
		closer:    closer,
	}
}

// Model returns the device model name.
func (s *Session) Model() string {
	return hid.ModelName(s.ProductID)
}

// Close releases the device, then stops the queue.
func (s *Session) Close() error {
	var err error
	if s.closer != nil {
		err = s.closer.Close()
	}
	s.Queue.Close()
	return err
}

// Connector opens a session with a device.
type Connector interface {
	Connect(ctx context.Context) (*Session, error)
}

// HIDConnector waits for a Ledger on USB.
type HIDConnector struct {
	Selector         *hid.Selector
	TransportOptions []hid.Option
	QueueSize        int
	Logger           Logger
}

// Connect implements Connector.
func (c *HIDConnector) Connect(ctx context.Context) (*Session, error) {
	info, err := c.Selector.Await(ctx)
	if err != nil {
		return nil, err
	}
	dev, err := c.Selector.Open(info)
	if err != nil {
		return nil, err
	}

	opts := c.TransportOptions
	if c.Logger != nil {
		opts = append(append([]hid.Option(nil), opts...), hid.WithLogger(c.Logger))
	}
	t, err := hid.NewTransport(dev, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	d := apdu.NewDevice(t, c.Logger)
	return NewSession(ledger.NewClient(d, c.Logger), uint32(info.ProductID), c.QueueSize, d), nil
}

// EmulatorConnector talks to a Speculos emulator over TCP.
type EmulatorConnector struct {
	Addr      string
	QueueSize int
	Logger    Logger
}

// Connect implements Connector.
func (c *EmulatorConnector) Connect(ctx context.Context) (*Session, error) {
	link, err := apdu.DialSpeculos(ctx, c.Addr)
	if err != nil {
		return nil, wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrDeviceNotFound, "%v", err),
			"Start the emulator or unset ledger.emulator_addr")
	}
	d := apdu.NewDevice(link, c.Logger)
	return NewSession(ledger.NewClient(d, c.Logger), hid.EmulatorProductID, c.QueueSize, d), nil
}

// onDevice runs fn as one job on the session queue and waits for it.
func onDevice[T any](ctx context.Context, s *Session, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := apdu.Submit(ctx, s.Queue, fn).Await(ctx)
	if err == nil {
		return v, nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return v, wardenerr.Wrap(wardenerr.ErrCancelled, "device request")
	case errors.Is(err, apdu.ErrQueueFull), errors.Is(err, apdu.ErrQueueClosed):
		return v, fmt.Errorf("%w: %w", wardenerr.ErrDeviceUnavailable, err)
	}
	return v, err
}
