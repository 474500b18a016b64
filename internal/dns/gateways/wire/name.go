package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/haukened/rr-fwd/internal/dns/domain"
)

const (
	pointerMask   = 0xC0   // both high bits set: compression pointer
	pointerOffset = 0x3FFF // low 14 bits of a pointer
)

// decodeName decodes the domain name starting at offset in msg, following
// compression pointers (RFC 1035 §4.1.4). It returns the dotted name and the
// number of bytes the name occupies at offset; bytes read at a pointer target
// are not counted. The root name decodes to "".
func decodeName(msg []byte, offset int) (string, int, error) {
	name, end, err := decodeNameBefore(msg, offset, offset)
	if err != nil {
		return "", 0, err
	}
	return name, end - offset, nil
}

// decodeNameBefore decodes a name at offset where any pointer must target a
// position strictly before limit. Each jump lowers the limit, so a pointer
// chain always terminates. It returns the offset just past the name in the
// stream it started in.
func decodeNameBefore(msg []byte, offset, limit int) (string, int, error) {
	var labels []string
	pos := offset
	for {
		if pos >= len(msg) {
			return "", 0, fmt.Errorf("%w: name at offset %d runs past end of message", ErrMalformed, offset)
		}
		length := int(msg[pos])
		switch length & pointerMask {
		case 0x00:
			pos++
			if length == 0 {
				return strings.Join(labels, "."), pos, nil
			}
			if pos+length > len(msg) {
				return "", 0, fmt.Errorf("%w: label length %d at offset %d out of bounds", ErrMalformed, length, pos-1)
			}
			labels = append(labels, strings.ToValidUTF8(string(msg[pos:pos+length]), "\uFFFD"))
			pos += length
		case pointerMask:
			if pos+1 >= len(msg) {
				return "", 0, fmt.Errorf("%w: compression pointer at offset %d truncated", ErrMalformed, pos)
			}
			target := int(binary.BigEndian.Uint16(msg[pos:pos+2]) & pointerOffset)
			if target >= limit {
				return "", 0, fmt.Errorf("%w: compression pointer at offset %d targets %d, not a prior name", ErrMalformed, pos, target)
			}
			suffix, _, err := decodeNameBefore(msg, target, target)
			if err != nil {
				return "", 0, err
			}
			if suffix != "" {
				labels = append(labels, suffix)
			}
			// a pointer always terminates the name
			return strings.Join(labels, "."), pos + 2, nil
		default:
			return "", 0, fmt.Errorf("%w: reserved label type 0x%02x at offset %d", ErrMalformed, length&pointerMask, pos)
		}
	}
}

// encodeName writes name as uncompressed length-prefixed labels followed by a
// zero byte. A trailing dot is tolerated; "" and "." encode the root.
func encodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return []byte{0}, nil
	}
	var buf bytes.Buffer
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 {
			return nil, fmt.Errorf("%w: empty label in %q", ErrEncode, name)
		}
		if len(label) > domain.MaxLabelLength {
			return nil, fmt.Errorf("%w: label too long: %s", ErrEncode, label)
		}
		buf.WriteByte(byte(len(label)))
		buf.WriteString(label)
	}
	buf.WriteByte(0)
	if buf.Len() > domain.MaxNameLength {
		return nil, fmt.Errorf("%w: name exceeds %d bytes: %s", ErrEncode, domain.MaxNameLength, name)
	}
	return buf.Bytes(), nil
}
