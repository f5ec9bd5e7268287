//go:build linux

package can

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// size of struct can_frame
const frameSize = 16

// SocketCAN is a raw CAN socket bound to one interface.
type SocketCAN struct {
	iface string
	file  *os.File
}

// OpenSocketCAN opens a raw CAN socket on the named interface (vcan0, can0, ...).
func OpenSocketCAN(iface string) (*SocketCAN, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan %s: %w", iface, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan %s: socket: %w", iface, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan %s: bind: %w", iface, err)
	}
	// Non-blocking so the runtime poller owns the fd and Close wakes a pending Read.
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan %s: %w", iface, err)
	}

	return &SocketCAN{
		iface: iface,
		file:  os.NewFile(uintptr(fd), iface),
	}, nil
}

// Receive blocks until a standard data frame arrives. Extended, remote and
// error frames are skipped.
func (s *SocketCAN) Receive() (Frame, error) {
	buf := make([]byte, frameSize)
	for {
		n, err := s.file.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return Frame{}, ErrClosed
			}
			return Frame{}, fmt.Errorf("socketcan %s: read: %w", s.iface, err)
		}
		if n != frameSize {
			return Frame{}, fmt.Errorf("socketcan %s: short read: %w", s.iface, io.ErrUnexpectedEOF)
		}

		rawID := binary.NativeEndian.Uint32(buf[0:4])
		if rawID&(unix.CAN_EFF_FLAG|unix.CAN_RTR_FLAG|unix.CAN_ERR_FLAG) != 0 {
			continue
		}
		dlc := buf[4]
		if dlc > 8 {
			dlc = 8
		}
		return NewFrame(uint16(rawID&unix.CAN_SFF_MASK), buf[8:8+dlc], time.Now()), nil
	}
}

// Send writes a standard data frame. Only the mock generator uses it; the
// listener never transmits.
func (s *SocketCAN) Send(f Frame) error {
	if len(f.Data) > 8 {
		return fmt.Errorf("socketcan %s: payload of %d bytes", s.iface, len(f.Data))
	}
	buf := make([]byte, frameSize)
	binary.NativeEndian.PutUint32(buf[0:4], uint32(f.ID)&unix.CAN_SFF_MASK)
	buf[4] = uint8(len(f.Data))
	copy(buf[8:], f.Data)
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("socketcan %s: write: %w", s.iface, err)
	}
	return nil
}

// Close releases the socket and unblocks Receive.
func (s *SocketCAN) Close() error {
	return s.file.Close()
}
