package walletkey

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mrz1836/warden/internal/wardencrypto"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Blob layout: typeId u16 BE | nonce 12 | ciphertext+tag. The plaintext
// repeats the type id before the type specific payload.
const (
	typeIDSize = 2
	headerSize = typeIDSize + wardencrypto.NonceSize
)

// BlobType reads the type id from the unencrypted blob header.
func BlobType(blob []byte) (Type, error) {
	if len(blob) < headerSize {
		return Type{}, fmt.Errorf("%w: key blob is %d bytes", wardenerr.ErrInvalidInput, len(blob))
	}
	id := binary.BigEndian.Uint16(blob)
	t, ok := TypeByID(id)
	if !ok {
		return Type{}, wardenerr.WithDetails(wardenerr.ErrUnknownKeyType, map[string]string{"id": fmt.Sprint(id)})
	}
	return t, nil
}

// sealBlob encrypts payload under a key derived from password and a fresh
// nonce.
func sealBlob(t Type, password, payload []byte) ([]byte, error) {
	nonce, err := wardencrypto.NewNonce()
	if err != nil {
		return nil, err
	}
	key, err := wardencrypto.DeriveKey(password, nonce)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	plaintext := binary.BigEndian.AppendUint16(make([]byte, 0, typeIDSize+len(payload)), t.ID)
	plaintext = append(plaintext, payload...)
	defer wardencrypto.ZeroBytes(plaintext)

	ct, err := wardencrypto.Encrypt(nonce, key.Bytes(), plaintext)
	if err != nil {
		return nil, err
	}

	blob := binary.BigEndian.AppendUint16(make([]byte, 0, headerSize+len(ct)), t.ID)
	blob = append(blob, nonce...)
	return append(blob, ct...), nil
}

// blobKey derives the symmetric key of blob from password.
func blobKey(blob, password []byte) (*wardencrypto.SecureBytes, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: key blob is %d bytes", wardenerr.ErrInvalidInput, len(blob))
	}
	return wardencrypto.DeriveKey(password, blob[typeIDSize:headerSize])
}

// openBlob decrypts blob and returns the payload after the type id. The
// caller zeroes the payload. A failed tag check is ErrAuthentication.
func openBlob(blob []byte, key *wardencrypto.SecureBytes) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: key blob is %d bytes", wardenerr.ErrInvalidInput, len(blob))
	}
	plaintext, err := wardencrypto.Decrypt(key.Bytes(), blob[typeIDSize:])
	switch {
	case errors.Is(err, wardencrypto.ErrAuthenticationFailure):
		return nil, wardenerr.ErrAuthentication
	case err != nil:
		return nil, fmt.Errorf("%w: %w", wardenerr.ErrInvalidInput, err)
	}

	if len(plaintext) < typeIDSize || binary.BigEndian.Uint16(plaintext) != binary.BigEndian.Uint16(blob) {
		wardencrypto.ZeroBytes(plaintext)
		return nil, fmt.Errorf("%w: key blob header and payload disagree on type", wardenerr.ErrInvalidInput)
	}
	return plaintext[typeIDSize:], nil
}

// payloadReader reads length prefixed fields from a decrypted payload.
type payloadReader struct {
	b   []byte
	err error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: key payload truncated", wardenerr.ErrInvalidInput)
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *payloadReader) u8() uint8 {
	if v := r.take(1); v != nil {
		return v[0]
	}
	return 0
}

func (r *payloadReader) u16() uint16 {
	if v := r.take(2); v != nil {
		return binary.BigEndian.Uint16(v)
	}
	return 0
}

func (r *payloadReader) u32() uint32 {
	if v := r.take(4); v != nil {
		return binary.BigEndian.Uint32(v)
	}
	return 0
}

// field reads a u16 length prefixed byte string.
func (r *payloadReader) field() []byte {
	return r.take(int(r.u16()))
}
