// Package secret holds the decoded pre-shared key and keeps it out of logs.
//
// On Linux, macOS and FreeBSD the decoded bytes live in an anonymous mmap
// region that is mlocked and, on Linux, marked MADV_DONTDUMP. Elsewhere
// they live on the heap. Close zeroes the bytes, and a Key renders as
// "[redacted]" in fmt and slog output.
//
// Only this copy is protected. The base64 text it was decoded from and the
// key schedule derived by crypto/aes sit in ordinary memory.
package secret

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Bytes after Close.
var ErrClosed = errors.New("secret: key is closed")

const redacted = "[redacted]"

// Key holds symmetric key material. A Key must not be copied after creation.
type Key struct {
	mu     sync.Mutex
	data   []byte
	closed bool
	free   func([]byte)
}

// NewKey copies source into protected memory and zeroes source.
func NewKey(source []byte) (*Key, error) {
	if len(source) == 0 {
		return nil, errors.New("secret: empty key")
	}
	data, free, err := allocate(len(source))
	if err != nil {
		return nil, err
	}
	copy(data, source)
	wipe(source)
	return &Key{data: data, free: free}, nil
}

// DecodeBase64 decodes a standard base64 key into protected memory.
func DecodeBase64(encoded string) (*Key, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secret: decoding key: %w", err)
	}
	return NewKey(raw)
}

// Len returns the key length in bytes, or 0 after Close.
func (k *Key) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return 0
	}
	return len(k.data)
}

// Bytes returns the key. The slice aliases protected memory and must not be
// retained past Close.
func (k *Key) Bytes() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}
	return k.data, nil
}

// Close zeroes and releases the key. It is idempotent.
func (k *Key) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	k.closed = true
	wipe(k.data)
	k.free(k.data)
	k.data = nil
}

func (k *Key) String() string { return redacted }

func (k *Key) GoString() string { return redacted }

func (k *Key) LogValue() slog.Value { return slog.StringValue(redacted) }

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
