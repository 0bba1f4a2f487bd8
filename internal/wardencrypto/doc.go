// Package wardencrypto holds the symmetric primitives used to protect wallet
// key blobs: a password based key derivation function, AES-256-GCM sealing,
// nonce generation, mlock'd secret buffers, and age passphrase encryption for
// exported archives.
package wardencrypto
