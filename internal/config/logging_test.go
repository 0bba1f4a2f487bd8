package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufCloser struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *bufCloser) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

func (b *bufCloser) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fixedNow() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC) }

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]LogLevel{
		"off": LogLevelOff, "NONE": LogLevelOff, "error": LogLevelError,
		" debug ": LogLevelDebug, "verbose": LogLevelError, "": LogLevelError,
	} {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "debug", LogLevelDebug.String())
	assert.Equal(t, "off", LogLevelOff.String())
	assert.Equal(t, "error", LogLevel(9).String())
}

func TestLogger_Format(t *testing.T) {
	t.Parallel()
	out := &bufCloser{}
	l := newWriterLogger(LogLevelDebug, out, fixedNow)

	l.Debug("queue depth %d", 3)
	l.Named("hid").Error("channel mismatch 0x%04x", 0)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-01-02 03:04:05.006 [DEBUG] queue depth 3", lines[0])
	assert.Equal(t, "2026-01-02 03:04:05.006 [ERROR] hid: channel mismatch 0x0000", lines[1])
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()
	out := &bufCloser{}
	l := newWriterLogger(LogLevelError, out, fixedNow)

	l.Debug("hidden")
	l.Named("apdu").Debug("hidden")
	l.Error("shown")
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	l.SetLevel(LogLevelOff)
	assert.Equal(t, LogLevelOff, l.Level())
	l.Error("hidden")
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestLogger_Writer(t *testing.T) {
	t.Parallel()
	out := &bufCloser{}
	l := newWriterLogger(LogLevelDebug, out, fixedNow)

	n, err := l.Writer(LogLevelError).Write([]byte("  from writer \n"))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Contains(t, out.String(), "[ERROR] from writer\n")
}

func TestLogger_Close(t *testing.T) {
	t.Parallel()
	out := &bufCloser{}
	l := newWriterLogger(LogLevelDebug, out, fixedNow)
	require.NoError(t, l.Close())
	assert.True(t, out.closed)
	require.NoError(t, l.Close())
	l.Error("after close")
	assert.Empty(t, out.String())

	require.NoError(t, NullLogger().Close())
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "warden.log")

	l, err := NewLogger(LogLevelDebug, path)
	require.NoError(t, err)
	l.Named("ledger").Debug("sign start")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path) //nolint:gosec // G304: test path
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] ledger: sign start")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNewLogger_Disabled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "never.log")

	l, err := NewLogger(LogLevelOff, path)
	require.NoError(t, err)
	l.Error("x")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	l, err = NewLogger(LogLevelDebug, "")
	require.NoError(t, err)
	l.Error("x")
}
