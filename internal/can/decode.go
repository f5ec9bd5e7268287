package can

import (
	"errors"
	"fmt"
)

// Sub-status values that carry optional fields.
const (
	StatusBoot   uint8 = 0x01 // firmware CRC present in bytes 0..3
	SystemLocked uint8 = 0x01 // unlock key present in bytes 0..1
)

var (
	ErrLengthMismatch = errors.New("can: length mismatch")
	ErrUnknownKind    = errors.New("can: unknown message kind")
)

// DecodeError reports a frame that could not be turned into a Sample.
type DecodeError struct {
	Kind     Kind
	Expected uint8
	Got      int
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err == ErrLengthMismatch {
		return fmt.Sprintf("decode %s: length %d, want %d", e.Kind, e.Got, e.Expected)
	}
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Sample is a decoded payload. Implemented by Position, Status, Error and System.
type Sample interface {
	Kind() Kind
	sample()
}

// Position is an absolute shaft position in raw encoder units.
type Position struct {
	Raw uint32
}

// Status is a status report. FirmwareCRC is set only during boot.
type Status struct {
	SubStatus   uint8
	FirmwareCRC *uint32
}

// Error is a device error report. VendorContext is opaque.
type Error struct {
	Code          uint8
	VendorContext [7]byte
}

// System is a system-state report. UnlockKey is set only while locked.
type System struct {
	SubStatus uint8
	UnlockKey *uint16
}

func (Position) Kind() Kind { return KindPosition }
func (Status) Kind() Kind   { return KindStatus }
func (Error) Kind() Kind    { return KindError }
func (System) Kind() Kind   { return KindSystem }

func (Position) sample() {}
func (Status) sample()   {}
func (Error) sample()    {}
func (System) sample()   {}

// Decode turns a payload into a typed sample. The declared length is checked
// against the kind before any byte is read.
func Decode(kind Kind, length uint8, data []byte) (Sample, error) {
	want := kind.ExpectedLen()
	if want == 0 {
		return nil, &DecodeError{Kind: kind, Got: int(length), Err: ErrUnknownKind}
	}
	if length != want || len(data) < int(want) {
		got := int(length)
		if length == want {
			got = len(data)
		}
		return nil, &DecodeError{Kind: kind, Expected: want, Got: got, Err: ErrLengthMismatch}
	}

	switch kind {
	case KindPosition:
		return Position{Raw: uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])}, nil

	case KindStatus:
		s := Status{SubStatus: data[7]}
		if s.SubStatus == StatusBoot {
			crc := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
			s.FirmwareCRC = &crc
		}
		return s, nil

	case KindError:
		e := Error{Code: data[7]}
		copy(e.VendorContext[:], data[:7])
		return e, nil

	default:
		s := System{SubStatus: data[7]}
		if s.SubStatus == SystemLocked {
			key := uint16(data[0])<<8 | uint16(data[1])
			s.UnlockKey = &key
		}
		return s, nil
	}
}

// DecodeFrame classifies and decodes f in one step.
func DecodeFrame(f Frame) (Channel, Sample, error) {
	ch, kind := Classify(f.ID)
	s, err := Decode(kind, f.Len, f.Data)
	return ch, s, err
}
