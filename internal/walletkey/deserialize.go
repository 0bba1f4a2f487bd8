package walletkey

import (
	"context"

	"github.com/mrz1836/warden/internal/metrics"
	"github.com/mrz1836/warden/internal/wardencrypto"
)

// Deserialize decrypts blob with password and rebuilds the key through the
// type registry. A LEDGER key also reconnects its device, which must be the
// one it was created with.
func Deserialize(ctx context.Context, blob, password []byte, opener *Opener) (k Key, err error) {
	typeName := "unknown"
	defer func() { metrics.RecordKeyOperation(typeName, metrics.OpLoad, err) }()

	t, err := BlobType(blob)
	if err != nil {
		return nil, err
	}
	typeName = t.Name

	key, err := blobKey(blob, password)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	payload, err := openBlob(blob, key)
	if err != nil {
		return nil, err
	}
	defer wardencrypto.ZeroBytes(payload)

	opener.logger().Debug("walletkey: opening %s key", t)
	return registryByID[t.ID].open(ctx, blob, payload, key, opener)
}

// VerifyPassword reports whether password opens blob. Nothing is rebuilt and
// no device is contacted. A wrong password is ErrAuthentication.
func VerifyPassword(blob, password []byte) error {
	if _, err := BlobType(blob); err != nil {
		return err
	}
	key, err := blobKey(blob, password)
	if err != nil {
		return err
	}
	defer key.Destroy()

	payload, err := openBlob(blob, key)
	if err != nil {
		return err
	}
	wardencrypto.ZeroBytes(payload)
	return nil
}
