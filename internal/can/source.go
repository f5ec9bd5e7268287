package can

import "errors"

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("can: source closed")

// Source produces frames from a bus or an equivalent producer.
//
// Receive blocks until the next frame is available. It returns io.EOF when
// the source has no more frames and ErrClosed once Close has been called.
// Close must unblock a pending Receive.
type Source interface {
	Receive() (Frame, error)
	Close() error
}
