// Package wire provides encoding and decoding of DNS messages for UDP transport.
// It handles the DNS wire format as specified in RFC 1035.
//
// Decoding follows compression pointers; encoding never emits them. Every
// message the codec writes has its section counts recomputed from the message
// itself.
package wire

import (
	"errors"

	"github.com/haukened/rr-fwd/internal/dns/domain"
)

var (
	// ErrMalformed marks input that cannot be decoded: too short for a declared
	// section, a truncated field, or an invalid name.
	ErrMalformed = errors.New("malformed DNS message")

	// ErrEncode marks a message that cannot be represented on the wire.
	ErrEncode = errors.New("cannot encode DNS message")
)

// DNSCodec converts between raw datagrams and domain messages.
type DNSCodec interface {
	DecodeMessage(data []byte) (domain.Message, error)
	EncodeMessage(msg domain.Message) ([]byte, error)
}
