// Package ledger speaks the Ergo Ledger app protocol: app identification,
// key export, address display, input box attestation and transaction signing.
package ledger

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/mrz1836/warden/internal/apdu"
	"github.com/mrz1836/warden/internal/ergo"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// AppName is the name the Ergo app reports.
const AppName = "Ergo"

// Protocol limits of the Ergo app.
const (
	MaxChunkSize        = apdu.MaxDataSize
	MaxTokensPerBatch   = 6
	MaxTokenIDsPerBatch = 7
	MaxTokens           = 20
)

const (
	cla byte = 0xe0

	insGetVersion  byte = 0x01
	insGetAppName  byte = 0x02
	insExtPubKey   byte = 0x10
	insDeriveAddr  byte = 0x11
	insAttestInput byte = 0x20
	insSignTx      byte = 0x21

	// P2 of a session opening command.
	p2WithoutToken byte = 0x01

	p1Return  byte = 0x01
	p1Display byte = 0x02
)

// Logger receives protocol diagnostics.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Version is the Ergo app version.
type Version struct {
	Major, Minor, Patch uint8
	Flags               uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Client drives the Ergo app over an exchanger. It holds no session state;
// each flow opens and finishes its own device session.
type Client struct {
	ex     apdu.Exchanger
	logger Logger
}

// NewClient returns a client over ex. A nil logger discards diagnostics.
func NewClient(ex apdu.Exchanger, logger Logger) *Client {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Client{ex: ex, logger: logger}
}

// send exchanges cmd and turns a non-OK status word into an error.
func (c *Client) send(ctx context.Context, ins, p1, p2 byte, data []byte) ([]byte, error) {
	resp, err := c.ex.Exchange(ctx, apdu.Command{CLA: cla, INS: ins, P1: p1, P2: p2, Data: data})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		c.logger.Debug("ledger: INS=0x%02x P1=0x%02x failed: %v", ins, p1, err)
		return nil, err
	}
	return resp.Data, nil
}

// AppName returns the name of the app open on the device.
func (c *Client) AppName(ctx context.Context) (string, error) {
	data, err := c.send(ctx, insGetAppName, 0, 0, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AppVersion returns the version of the Ergo app.
func (c *Client) AppVersion(ctx context.Context) (Version, error) {
	data, err := c.send(ctx, insGetVersion, 0, 0, nil)
	if err != nil {
		return Version{}, err
	}
	if len(data) < 3 {
		return Version{}, fmt.Errorf("%w: version response is %d bytes", wardenerr.ErrProtocol, len(data))
	}
	v := Version{Major: data[0], Minor: data[1], Patch: data[2]}
	if len(data) > 3 {
		v.Flags = data[3]
	}
	return v, nil
}

// RequireErgoApp fails with ErrDeviceUnavailable unless the Ergo app is open.
func (c *Client) RequireErgoApp(ctx context.Context) error {
	name, err := c.AppName(ctx)
	if err != nil {
		return err
	}
	if name != AppName {
		return wardenerr.WithSuggestion(
			wardenerr.Wrap(wardenerr.ErrDeviceUnavailable, "device is running %q", name),
			"Open the Ergo app on your Ledger")
	}
	return nil
}

// ExtendedPublicKey exports the public key and chain code at path. The user
// must approve the export on the device.
func (c *Client) ExtendedPublicKey(ctx context.Context, path []uint32) (*ergo.ExtendedPublicKey, error) {
	data, err := c.send(ctx, insExtPubKey, p2WithoutToken, 0, appendPath(nil, path))
	if err != nil {
		return nil, err
	}
	if len(data) != secp256k1.PubKeyBytesLenCompressed+32 {
		return nil, fmt.Errorf("%w: extended public key response is %d bytes", wardenerr.ErrProtocol, len(data))
	}
	key, err := ergo.NewExtendedPublicKey(data[:33], data[33:], path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", wardenerr.ErrProtocol, err)
	}
	return key, nil
}

// RequestParentExtendedPublicKey exports the account key m/44'/429'/0' and
// returns its external chain child m/44'/429'/0'/0, the parent of every
// address the wallet uses.
func (c *Client) RequestParentExtendedPublicKey(ctx context.Context) (*ergo.ExtendedPublicKey, error) {
	account, err := c.ExtendedPublicKey(ctx, ergo.AccountPath())
	if err != nil {
		return nil, err
	}
	return account.Child(0)
}

// DeriveAddress asks the device for the address at path without showing it.
func (c *Client) DeriveAddress(ctx context.Context, network ergo.NetworkType, path []uint32) (ergo.Address, error) {
	data, err := c.send(ctx, insDeriveAddr, p1Return, p2WithoutToken, appendPath([]byte{byte(network)}, path))
	if err != nil {
		return ergo.Address{}, err
	}
	addr, err := ergo.ParseAddressBytes(data)
	if err != nil {
		return ergo.Address{}, fmt.Errorf("%w: %w", wardenerr.ErrProtocol, err)
	}
	return addr, nil
}

// ShowAddress displays the address at path on the device screen for the user
// to compare.
func (c *Client) ShowAddress(ctx context.Context, network ergo.NetworkType, path []uint32) error {
	_, err := c.send(ctx, insDeriveAddr, p1Display, p2WithoutToken, appendPath([]byte{byte(network)}, path))
	return err
}
