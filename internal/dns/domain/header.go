package domain

import "fmt"

// HeaderSize is the fixed length of a DNS message header on the wire.
const HeaderSize = 12

// Opcode is the 4-bit operation code carried in the header.
type Opcode uint8

const (
	OpcodeQuery  Opcode = 0
	OpcodeIQuery Opcode = 1
	OpcodeStatus Opcode = 2
	OpcodeNotify Opcode = 4
	OpcodeUpdate Opcode = 5
)

// String returns the textual representation of the Opcode.
func (o Opcode) String() string {
	switch o {
	case OpcodeQuery:
		return "QUERY"
	case OpcodeIQuery:
		return "IQUERY"
	case OpcodeStatus:
		return "STATUS"
	case OpcodeNotify:
		return "NOTIFY"
	case OpcodeUpdate:
		return "UPDATE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", o)
	}
}

// Header is the 12-byte message header described in RFC 1035 §4.1.1.
// The count fields mirror what was read off the wire; before encoding they are
// recomputed from the message sections (see Message.SyncCounts).
type Header struct {
	ID                 uint16
	Response           bool   // QR
	Opcode             Opcode // 4 bits
	Authoritative      bool   // AA
	Truncated          bool   // TC
	RecursionDesired   bool   // RD
	RecursionAvailable bool   // RA
	Z                  uint8  // 3 reserved bits
	RCode              RCode  // 4 bits
	QDCount            uint16
	ANCount            uint16
	NSCount            uint16
	ARCount            uint16
}
