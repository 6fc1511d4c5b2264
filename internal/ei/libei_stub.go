//go:build !cgo || !linux

package ei

// NewSender is unavailable without cgo.
func NewSender(name string) (Context, error) {
	return nil, ErrUnavailable
}
