//go:build !cgo || !linux

package xkb

// NewEngine is unavailable without cgo.
func NewEngine() (Engine, error) {
	return nil, ErrUnavailable
}
