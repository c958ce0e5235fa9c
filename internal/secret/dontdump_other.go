//go:build darwin || freebsd

package secret

func adviseNoDump([]byte) {}
