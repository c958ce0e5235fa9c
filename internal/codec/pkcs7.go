package codec

import (
	"bytes"
	"crypto/subtle"
)

// pad appends n bytes of value n so the result is a multiple of blockSize.
// A full block is added when data is already aligned.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding. The padding bytes are compared in constant
// time over the whole final block; the length check on the last byte is
// the only data-dependent branch.
func unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, false
	}

	tail := data[len(data)-blockSize:]
	good := 1
	for i := 0; i < blockSize; i++ {
		inPad := subtle.ConstantTimeLessOrEq(blockSize-n, i)
		match := subtle.ConstantTimeByteEq(tail[i], byte(n))
		// Bytes outside the padding are ignored.
		good &= match | (inPad ^ 1)
	}
	if good != 1 {
		return nil, false
	}
	return data[:len(data)-n], true
}
