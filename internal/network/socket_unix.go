//go:build linux || darwin || freebsd || netbsd || openbsd

package network

import "golang.org/x/sys/unix"

// setReceiveBuffer sets the kernel receive buffer of a socket.
func setReceiveBuffer(fd uintptr, size int) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
}
