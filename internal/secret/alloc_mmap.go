//go:build linux || darwin || freebsd

package secret

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func allocate(size int) ([]byte, func([]byte), error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, fmt.Errorf("secret: mmap: %w", err)
	}
	// mlock can fail under a low RLIMIT_MEMLOCK; the key is still usable,
	// only swappable.
	locked := unix.Mlock(data) == nil
	adviseNoDump(data)

	free := func(b []byte) {
		if locked {
			unix.Munlock(b) //nolint:errcheck
		}
		unix.Munmap(b) //nolint:errcheck
	}
	return data, free, nil
}
