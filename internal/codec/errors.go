package codec

import (
	"errors"
	"fmt"
)

// KeySizeError is returned when a key is not 16, 24 or 32 bytes long.
type KeySizeError int

func (k KeySizeError) Error() string {
	return fmt.Sprintf("codec: invalid key size %d (want 16, 24 or 32)", int(k))
}

// Reasons reported by CryptoError.
const (
	ReasonEncoding  = "invalid base64"
	ReasonShort     = "payload shorter than one block"
	ReasonAlignment = "ciphertext is not a multiple of the block size"
	ReasonPadding   = "invalid padding"
	ReasonUTF8      = "plaintext is not valid UTF-8"
	ReasonRandom    = "iv generation failed"
)

// CryptoError describes a payload that could not be sealed or opened.
type CryptoError struct {
	Reason string
	Err    error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %v", e.Reason, e.Err)
	}
	return "codec: " + e.Reason
}

func (e *CryptoError) Unwrap() error { return e.Err }

// IsCryptoError reports whether err is a *CryptoError.
func IsCryptoError(err error) bool {
	var cryptoErr *CryptoError
	return errors.As(err, &cryptoErr)
}
