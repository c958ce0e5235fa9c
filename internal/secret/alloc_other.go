//go:build !linux && !darwin && !freebsd

package secret

func allocate(size int) ([]byte, func([]byte), error) {
	return make([]byte, size), func([]byte) {}, nil
}
