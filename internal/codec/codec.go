// Package codec seals clipboard text for transport between peers.
//
// Text is encoded as UTF-8, padded with PKCS#7 to the AES block size and
// encrypted with AES-CBC under a pre-shared key. Every message gets a fresh
// random IV which travels in front of the ciphertext:
//
//	base64( iv[0:16] || ciphertext[16:] )
//
// A legacy framing with one shared IV from configuration is available via
// WithStaticIV for peers that still decrypt with a fixed IV. In that mode
// the payload is base64(ciphertext) and the IV is never transmitted.
//
// Decrypt reports every failure as a *CryptoError. The reasons are distinct
// in the error value, but the padding check itself runs in constant time
// over the final block. A hardened deployment should still authenticate
// payloads (encrypt-then-MAC) since CBC alone is malleable.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"unicode/utf8"
)

// BlockSize is the AES block size and the IV length.
const BlockSize = aes.BlockSize

// Payload is the unit exchanged between peers.
type Payload struct {
	IV         []byte
	Ciphertext []byte
}

// Encode returns base64(IV || Ciphertext).
func (p Payload) Encode() string {
	raw := make([]byte, 0, len(p.IV)+len(p.Ciphertext))
	raw = append(raw, p.IV...)
	raw = append(raw, p.Ciphertext...)
	return base64.StdEncoding.EncodeToString(raw)
}

// ParsePayload decodes a base64 blob laid out as IV || ciphertext and checks
// the framing invariants: a 16-byte IV followed by at least one whole block.
func ParsePayload(encoded string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, &CryptoError{Reason: ReasonEncoding, Err: err}
	}
	if len(raw) < 2*BlockSize {
		return Payload{}, &CryptoError{Reason: ReasonShort}
	}
	if len(raw)%BlockSize != 0 {
		return Payload{}, &CryptoError{Reason: ReasonAlignment}
	}
	return Payload{IV: raw[:BlockSize], Ciphertext: raw[BlockSize:]}, nil
}

// Option configures a Codec.
type Option func(*Codec) error

// WithStaticIV makes the Codec use iv for every message and omit it from
// the payload.
func WithStaticIV(iv []byte) Option {
	return func(c *Codec) error {
		if len(iv) != BlockSize {
			return fmt.Errorf("codec: static iv must be %d bytes, got %d", BlockSize, len(iv))
		}
		c.staticIV = append([]byte(nil), iv...)
		return nil
	}
}

// WithRandom replaces the IV source. Tests use it to force failures.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) error {
		c.random = r
		return nil
	}
}

// Codec encrypts and decrypts clipboard text under one key. It holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	block    cipher.Block
	staticIV []byte
	random   io.Reader
}

// New builds a Codec for key, which must be 16, 24 or 32 bytes.
func New(key []byte, opts ...Option) (*Codec, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, KeySizeError(len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	c := &Codec{block: block, random: rand.Reader}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Legacy reports whether the codec uses the shared static IV framing.
func (c *Codec) Legacy() bool {
	return c.staticIV != nil
}

// Seal encrypts plaintext into a Payload.
func (c *Codec) Seal(plaintext string) (Payload, error) {
	iv := make([]byte, BlockSize)
	if c.staticIV != nil {
		copy(iv, c.staticIV)
	} else if _, err := io.ReadFull(c.random, iv); err != nil {
		return Payload{}, &CryptoError{Reason: ReasonRandom, Err: err}
	}

	padded := pad([]byte(plaintext), BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)

	return Payload{IV: iv, Ciphertext: ciphertext}, nil
}

// Open decrypts a Payload and returns the plaintext.
func (c *Codec) Open(p Payload) (string, error) {
	if len(p.IV) != BlockSize {
		return "", &CryptoError{Reason: fmt.Sprintf("iv must be %d bytes", BlockSize)}
	}
	if len(p.Ciphertext) < BlockSize {
		return "", &CryptoError{Reason: ReasonShort}
	}
	if len(p.Ciphertext)%BlockSize != 0 {
		return "", &CryptoError{Reason: ReasonAlignment}
	}

	plain := make([]byte, len(p.Ciphertext))
	cipher.NewCBCDecrypter(c.block, p.IV).CryptBlocks(plain, p.Ciphertext)

	unpadded, ok := unpad(plain, BlockSize)
	if !ok {
		return "", &CryptoError{Reason: ReasonPadding}
	}
	if !utf8.Valid(unpadded) {
		return "", &CryptoError{Reason: ReasonUTF8}
	}
	return string(unpadded), nil
}

// Encrypt seals plaintext and returns the transport encoding.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	p, err := c.Seal(plaintext)
	if err != nil {
		return "", err
	}
	if c.staticIV != nil {
		return base64.StdEncoding.EncodeToString(p.Ciphertext), nil
	}
	return p.Encode(), nil
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(encoded string) (string, error) {
	if c.staticIV == nil {
		p, err := ParsePayload(encoded)
		if err != nil {
			return "", err
		}
		return c.Open(p)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &CryptoError{Reason: ReasonEncoding, Err: err}
	}
	return c.Open(Payload{IV: c.staticIV, Ciphertext: raw})
}

// Encrypt is a one-shot helper around New and Codec.Encrypt.
func Encrypt(plaintext string, key []byte) (string, error) {
	c, err := New(key)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plaintext)
}

// Decrypt is a one-shot helper around New and Codec.Decrypt.
func Decrypt(encoded string, key []byte) (string, error) {
	c, err := New(key)
	if err != nil {
		return "", err
	}
	return c.Decrypt(encoded)
}
