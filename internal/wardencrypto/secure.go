package wardencrypto

import (
	"runtime"
	"sync"
	"sync/atomic"
)

//nolint:gochecknoglobals // process wide switch set from configuration
var memoryLock atomic.Bool

func init() {
	memoryLock.Store(true)
}

// SetMemoryLock turns mlock of new secret buffers on or off and returns the
// previous setting.
func SetMemoryLock(on bool) bool {
	return memoryLock.Swap(on)
}

// SecureBytes keeps a secret in memory that is locked where the platform
// allows it and zeroed on Destroy.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes allocates a zeroed secret buffer of the given size.
func NewSecureBytes(size int) (*SecureBytes, error) {
	sb := &SecureBytes{data: make([]byte, size)}
	if memoryLock.Load() {
		sb.locked = mlock(sb.data)
	}

	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})
	return sb, nil
}

// SecureBytesFromSlice copies data into a new SecureBytes. The source slice
// is left untouched.
func SecureBytesFromSlice(data []byte) (*SecureBytes, error) {
	sb, err := NewSecureBytes(len(data))
	if err != nil {
		return nil, err
	}
	copy(sb.data, data)
	return sb, nil
}

// Bytes returns the live buffer, or nil after Destroy.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Clone returns an independent copy, or nil if s was destroyed.
func (s *SecureBytes) Clone() *SecureBytes {
	s.mu.Lock()
	src := s.data
	s.mu.Unlock()
	if src == nil {
		return nil
	}
	c, _ := SecureBytesFromSlice(src)
	return c
}

// IsLocked reports whether the buffer is mlock'd.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Len returns the buffer length.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Destroy zeroes and unlocks the buffer. Safe to call more than once.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}
	ZeroBytes(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil
	runtime.SetFinalizer(s, nil)
}
