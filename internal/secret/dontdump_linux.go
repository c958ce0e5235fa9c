//go:build linux

package secret

import "golang.org/x/sys/unix"

func adviseNoDump(data []byte) {
	unix.Madvise(data, unix.MADV_DONTDUMP) //nolint:errcheck
}
