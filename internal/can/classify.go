package can

// Channel is one of the two redundant measurement paths.
type Channel uint8

const (
	Master Channel = iota
	Slave
)

func (c Channel) String() string {
	if c == Slave {
		return "slave"
	}
	return "master"
}

// Kind is the message type carried by a frame, derived from its base id.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPosition
	KindStatus
	KindError
	KindSystem
)

// Base ids of the LES02 message pairs. Id and id+1 carry the same kind
// for Master and Slave respectively.
const (
	BaseSystem   uint16 = 0x10
	BaseError    uint16 = 0x20
	BaseStatus   uint16 = 0x30
	BasePosition uint16 = 0x80
)

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ExpectedLen returns the fixed DLC for a kind, or 0 for KindUnknown.
func (k Kind) ExpectedLen() uint8 {
	switch k {
	case KindPosition:
		return 4
	case KindStatus, KindError, KindSystem:
		return 8
	default:
		return 0
	}
}

// Classify maps an arbitration id to its channel and message kind.
// Every 11-bit id has a defined result; KindUnknown is not an error.
func Classify(id uint16) (Channel, Kind) {
	ch := Master
	if id&1 == 1 {
		ch = Slave
	}

	switch id & MaxID &^ 1 {
	case BasePosition:
		return ch, KindPosition
	case BaseStatus:
		return ch, KindStatus
	case BaseError:
		return ch, KindError
	case BaseSystem:
		return ch, KindSystem
	default:
		return ch, KindUnknown
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindPosition, KindStatus, KindError, KindSystem, KindUnknown} {
		if k.String() == s {
			return k, true
		}
	}
	return KindUnknown, false
}
