package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// Flag masks for the two header flag bytes (RFC 1035 §4.1.1).
const (
	flagQR     = 0x80 // byte 2
	flagAA     = 0x04 // byte 2
	flagTC     = 0x02 // byte 2
	flagRD     = 0x01 // byte 2
	flagRA     = 0x80 // byte 3
	maskOpcode = 0x0F
	maskZ      = 0x07
	maskRCode  = 0x0F
)

// decodeHeader extracts the header fields from the first 12 bytes of data.
func decodeHeader(data []byte) (domain.Header, error) {
	if len(data) < domain.HeaderSize {
		return domain.Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformed, domain.HeaderSize, len(data))
	}
	b2, b3 := data[2], data[3]
	return domain.Header{
		ID:                 binary.BigEndian.Uint16(data[0:2]),
		Response:           b2&flagQR != 0,
		Opcode:             domain.Opcode((b2 >> 3) & maskOpcode),
		Authoritative:      b2&flagAA != 0,
		Truncated:          b2&flagTC != 0,
		RecursionDesired:   b2&flagRD != 0,
		RecursionAvailable: b3&flagRA != 0,
		Z:                  (b3 >> 4) & maskZ,
		RCode:              domain.RCode(b3 & maskRCode),
		QDCount:            binary.BigEndian.Uint16(data[4:6]),
		ANCount:            binary.BigEndian.Uint16(data[6:8]),
		NSCount:            binary.BigEndian.Uint16(data[8:10]),
		ARCount:            binary.BigEndian.Uint16(data[10:12]),
	}, nil
}

// encodeHeader bit-packs h into its 12-byte wire form. Out-of-range opcode,
// Z and rcode values are masked to their field widths.
func encodeHeader(h domain.Header) [domain.HeaderSize]byte {
	var out [domain.HeaderSize]byte
	binary.BigEndian.PutUint16(out[0:2], h.ID)

	b2 := (byte(h.Opcode) & maskOpcode) << 3
	if h.Response {
		b2 |= flagQR
	}
	if h.Authoritative {
		b2 |= flagAA
	}
	if h.Truncated {
		b2 |= flagTC
	}
	if h.RecursionDesired {
		b2 |= flagRD
	}
	b3 := (h.Z&maskZ)<<4 | byte(h.RCode)&maskRCode
	if h.RecursionAvailable {
		b3 |= flagRA
	}
	out[2], out[3] = b2, b3

	binary.BigEndian.PutUint16(out[4:6], h.QDCount)
	binary.BigEndian.PutUint16(out[6:8], h.ANCount)
	binary.BigEndian.PutUint16(out[8:10], h.NSCount)
	binary.BigEndian.PutUint16(out[10:12], h.ARCount)
	return out
}
