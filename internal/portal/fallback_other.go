//go:build !linux

package portal

func fallbackTransport(env string) (int, error) {
	return -1, ErrNoTransport
}
