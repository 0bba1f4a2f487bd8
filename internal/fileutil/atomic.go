// Package fileutil holds the small filesystem helpers the keystore, session
// and backup layers share.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Permission modes for anything that holds key material.
const (
	SecretFileMode os.FileMode = 0o600
	SecretDirMode  os.FileMode = 0o700
)

var (
	// ErrEmptyPath indicates an empty file path was provided.
	ErrEmptyPath = errors.New("path is empty")

	// ErrTooLarge is returned by ReadLimited when a file exceeds its limit.
	ErrTooLarge = errors.New("file too large")
)

// WriteAtomic replaces path with data. The bytes go to a temp file in the
// same directory which is synced, chmod'ed to perm and renamed over path, so
// readers see either the old or the new content.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: callers build path from validated names
		_ = os.Remove(tmpPath)
		committed = true
		return fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true

	// Best effort: make the rename itself durable.
	if d, err := os.Open(dir); err == nil { //nolint:gosec // G304: dir is derived from path
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// WriteSecret creates the parent directory with SecretDirMode if needed and
// writes data atomically with SecretFileMode.
func WriteSecret(path string, data []byte) error {
	if path == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), SecretDirMode); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return WriteAtomic(path, data, SecretFileMode)
}

// ReadLimited reads path, refusing files larger than limit bytes.
func ReadLimited(path string, limit int64) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	f, err := os.Open(path) //nolint:gosec // G304: callers build path from validated names or explicit user input
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, filepath.Base(path), limit)
	}
	return data, nil
}

// RemoveIfExists deletes path and reports whether it was there.
func RemoveIfExists(path string) (bool, error) {
	err := os.Remove(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("removing %s: %w", filepath.Base(path), err)
	}
}
