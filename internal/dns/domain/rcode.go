package domain

import "fmt"

// RCode represents a DNS response code indicating the result of a query.
// Only the low 4 bits travel in the header.
type RCode uint8

const (
	NOERROR  RCode = 0
	FORMERR  RCode = 1
	SERVFAIL RCode = 2
	NXDOMAIN RCode = 3
	NOTIMP   RCode = 4
	REFUSED  RCode = 5
	YXDOMAIN RCode = 6
	YXRRSET  RCode = 7
	NXRRSET  RCode = 8
	NOTAUTH  RCode = 9
	NOTZONE  RCode = 10
)

// IsValid returns true if the RCode fits in the 4-bit header field.
func (r RCode) IsValid() bool {
	return r <= 15
}

// String returns the textual representation of the RCode.
func (r RCode) String() string {
	switch r {
	case NOERROR:
		return "NOERROR"
	case FORMERR:
		return "FORMERR"
	case SERVFAIL:
		return "SERVFAIL"
	case NXDOMAIN:
		return "NXDOMAIN"
	case NOTIMP:
		return "NOTIMP"
	case REFUSED:
		return "REFUSED"
	case YXDOMAIN:
		return "YXDOMAIN"
	case YXRRSET:
		return "YXRRSET"
	case NXRRSET:
		return "NXRRSET"
	case NOTAUTH:
		return "NOTAUTH"
	case NOTZONE:
		return "NOTZONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", r)
	}
}
