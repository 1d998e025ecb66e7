//go:build windows

package network

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// setReceiveBuffer sets the kernel receive buffer of a socket.
func setReceiveBuffer(fd uintptr, size int) error {
	val := int32(size)
	return windows.Setsockopt(
		windows.Handle(fd),
		windows.SOL_SOCKET,
		windows.SO_RCVBUF,
		(*byte)(unsafe.Pointer(&val)),
		int32(unsafe.Sizeof(val)),
	)
}
