package can

import (
	"fmt"
	"time"
)

// MaxID is the largest standard (11-bit) arbitration id.
const MaxID = 0x7FF

// Frame is a standard CAN data frame as received from the bus.
type Frame struct {
	ID         uint16
	Len        uint8
	Data       []byte
	ReceivedAt time.Time
}

// NewFrame builds a frame with a private copy of data.
func NewFrame(id uint16, data []byte, receivedAt time.Time) Frame {
	payload := make([]byte, len(data))
	copy(payload, data)
	return Frame{
		ID:         id & MaxID,
		Len:        uint8(len(payload)),
		Data:       payload,
		ReceivedAt: receivedAt,
	}
}

// String renders the frame in candump notation.
func (f Frame) String() string {
	return fmt.Sprintf("%03X#%X", f.ID, f.Data)
}
