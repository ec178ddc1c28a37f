//go:build !linux

package session

import "errors"

var errUnsupported = errors.New("wayland sessions are only supported on linux")

// Connect is unavailable off linux
func Connect(string) (Connection, error) {
	return nil, errUnsupported
}

func defaultAllocator(int) (SharedMemory, error) {
	return nil, errUnsupported
}
