//go:build linux

package portal

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fallbackTransport connects to the EIS socket named by the environment
// variable env. It exists for setups where the portal cannot hand out an
// EIS descriptor.
func fallbackTransport(env string) (int, error) {
	path := os.Getenv(env)
	if path == "" {
		return -1, fmt.Errorf("%w: %s is unset", ErrNoTransport, env)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("create socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("%w: connect %s: %v", ErrNoTransport, path, err)
	}
	return fd, nil
}
