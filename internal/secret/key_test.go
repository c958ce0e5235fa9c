package secret

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestNewKeyZeroesSource(t *testing.T) {
	source := []byte("0123456789abcdef")
	want := append([]byte(nil), source...)

	key, err := NewKey(source)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	defer key.Close()

	if !bytes.Equal(source, make([]byte, len(source))) {
		t.Error("source was not zeroed")
	}
	got, err := key.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Bytes = %x, want %x", got, want)
	}
	if key.Len() != 16 {
		t.Errorf("Len = %d, want 16", key.Len())
	}
}

func TestDecodeBase64(t *testing.T) {
	key, err := DecodeBase64("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	defer key.Close()
	if key.Len() != 32 {
		t.Errorf("Len = %d, want 32", key.Len())
	}

	if _, err := DecodeBase64("not base64!"); err == nil {
		t.Error("DecodeBase64 accepted invalid input")
	}
	if _, err := DecodeBase64(""); err == nil {
		t.Error("DecodeBase64 accepted an empty key")
	}
}

func TestClose(t *testing.T) {
	key, err := NewKey([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	key.Close()
	key.Close()

	if _, err := key.Bytes(); !errors.Is(err, ErrClosed) {
		t.Errorf("Bytes after Close = %v, want ErrClosed", err)
	}
	if key.Len() != 0 {
		t.Errorf("Len after Close = %d, want 0", key.Len())
	}
}

func TestKeyIsRedacted(t *testing.T) {
	key, err := NewKey([]byte("super-secret-key"))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	defer key.Close()

	for _, s := range []string{fmt.Sprint(key), fmt.Sprintf("%v", key), fmt.Sprintf("%#v", key)} {
		if strings.Contains(s, "super-secret") {
			t.Errorf("formatted key leaks material: %q", s)
		}
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("loaded", "key", key)
	if strings.Contains(buf.String(), "super-secret") {
		t.Errorf("log line leaks key: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[redacted]") {
		t.Errorf("log line = %s, want [redacted]", buf.String())
	}
}
