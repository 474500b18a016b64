package domain

import "fmt"

// RRClass represents a DNS class (usually IN for Internet).
// Like RRType, unrecognized codes are carried through untouched.
type RRClass uint16

// DNS Resource Record Class constants
const (
	RRClassIN   RRClass = 1   // IN - Internet
	RRClassCS   RRClass = 2   // CS - CSNET (obsolete)
	RRClassCH   RRClass = 3   // CH - Chaos
	RRClassHS   RRClass = 4   // HS - Hesiod
	RRClassNONE RRClass = 254 // NONE - No class
	RRClassANY  RRClass = 255 // ANY - Any class (query only)
)

// IsKnown returns true if the RRClass is one of the recognized classes.
func (c RRClass) IsKnown() bool {
	switch c {
	case RRClassIN, RRClassCS, RRClassCH, RRClassHS, RRClassNONE, RRClassANY:
		return true
	default:
		return false
	}
}

// Code returns the raw 16-bit wire value.
func (c RRClass) Code() uint16 {
	return uint16(c)
}

// String returns the textual representation of the RRClass.
func (c RRClass) String() string {
	switch c {
	case RRClassIN:
		return "IN"
	case RRClassCS:
		return "CS"
	case RRClassCH:
		return "CH"
	case RRClassHS:
		return "HS"
	case RRClassNONE:
		return "NONE"
	case RRClassANY:
		return "ANY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(c))
	}
}
