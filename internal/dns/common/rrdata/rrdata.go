// Package rrdata renders and builds RDATA for the handful of record types the
// forwarder ever needs to look inside. Everything else stays opaque bytes.
package rrdata

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// Decode renders RDATA in presentation form for logs.
// Types without a decoder render as "\# <len> <hex>" (RFC 3597).
func Decode(rrType domain.RRType, data []byte) (string, error) {
	switch rrType {
	case domain.RRTypeA:
		return decodeAData(data)
	case domain.RRTypeAAAA:
		return decodeAAAAData(data)
	case domain.RRTypeTXT:
		return decodeTXTData(data)
	default:
		return fmt.Sprintf("\\# %d %s", len(data), hex.EncodeToString(data)), nil
	}
}

// EncodeAData encodes a dotted-quad address into A RDATA.
func EncodeAData(data string) ([]byte, error) {
	ip := net.ParseIP(data)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid A record IP: %s", data)
	}
	return ip.To4(), nil
}

// EncodeAAAAData encodes an IPv6 address into AAAA RDATA.
func EncodeAAAAData(data string) ([]byte, error) {
	ip := net.ParseIP(data)
	if ip == nil || ip.To16() == nil || ip.To4() != nil {
		return nil, fmt.Errorf("invalid AAAA record IP: %s", data)
	}
	return ip.To16(), nil
}

func decodeAData(b []byte) (string, error) {
	if len(b) != net.IPv4len {
		return "", fmt.Errorf("invalid A record length: %d", len(b))
	}
	return net.IP(b).String(), nil
}

func decodeAAAAData(b []byte) (string, error) {
	if len(b) != net.IPv6len {
		return "", fmt.Errorf("invalid AAAA record length: %d", len(b))
	}
	return net.IP(b).String(), nil
}

// decodeTXTData joins the character-strings of a TXT record, quoting each.
func decodeTXTData(b []byte) (string, error) {
	var parts []string
	for i := 0; i < len(b); {
		l := int(b[i])
		i++
		if i+l > len(b) {
			return "", fmt.Errorf("invalid TXT character-string length")
		}
		parts = append(parts, fmt.Sprintf("%q", string(b[i:i+l])))
		i += l
	}
	return strings.Join(parts, " "), nil
}
