//go:build !linux

package can

import "errors"

// ErrUnsupported is returned on platforms without SocketCAN.
var ErrUnsupported = errors.New("can: socketcan requires linux")

// SocketCAN is unavailable on this platform.
type SocketCAN struct{}

func OpenSocketCAN(iface string) (*SocketCAN, error) { return nil, ErrUnsupported }

func (s *SocketCAN) Receive() (Frame, error) { return Frame{}, ErrUnsupported }
func (s *SocketCAN) Send(Frame) error        { return ErrUnsupported }
func (s *SocketCAN) Close() error            { return nil }
