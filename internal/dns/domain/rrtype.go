package domain

import "fmt"

// RRType represents a DNS resource record type (e.g. A, AAAA, MX).
//
// The raw code is always preserved. A code outside the recognized set is an
// unrecognized variant: it is not an error, it simply reports IsKnown() == false
// and re-encodes to the same value it was decoded from.
type RRType uint16

// DNS Resource Record Type constants
const (
	RRTypeA     RRType = 1   // A - IPv4 address
	RRTypeNS    RRType = 2   // NS - Name server
	RRTypeMD    RRType = 3   // MD - Mail destination (obsolete)
	RRTypeMF    RRType = 4   // MF - Mail forwarder (obsolete)
	RRTypeCNAME RRType = 5   // CNAME - Canonical name
	RRTypeSOA   RRType = 6   // SOA - Start of authority
	RRTypeMB    RRType = 7   // MB - Mailbox domain name (experimental)
	RRTypeMG    RRType = 8   // MG - Mail group member (experimental)
	RRTypeMR    RRType = 9   // MR - Mail rename domain name (experimental)
	RRTypeNULL  RRType = 10  // NULL - Null RR (experimental)
	RRTypeWKS   RRType = 11  // WKS - Well known service
	RRTypePTR   RRType = 12  // PTR - Pointer
	RRTypeHINFO RRType = 13  // HINFO - Host information
	RRTypeMINFO RRType = 14  // MINFO - Mailbox information
	RRTypeMX    RRType = 15  // MX - Mail exchange
	RRTypeTXT   RRType = 16  // TXT - Text
	RRTypeAAAA  RRType = 28  // AAAA - IPv6 address
	RRTypeSRV   RRType = 33  // SRV - Service
	RRTypeOPT   RRType = 41  // OPT - EDNS option
	RRTypeANY   RRType = 255 // ANY - Any type (query only)
)

var rrTypeNames = map[RRType]string{
	RRTypeA:     "A",
	RRTypeNS:    "NS",
	RRTypeMD:    "MD",
	RRTypeMF:    "MF",
	RRTypeCNAME: "CNAME",
	RRTypeSOA:   "SOA",
	RRTypeMB:    "MB",
	RRTypeMG:    "MG",
	RRTypeMR:    "MR",
	RRTypeNULL:  "NULL",
	RRTypeWKS:   "WKS",
	RRTypePTR:   "PTR",
	RRTypeHINFO: "HINFO",
	RRTypeMINFO: "MINFO",
	RRTypeMX:    "MX",
	RRTypeTXT:   "TXT",
	RRTypeAAAA:  "AAAA",
	RRTypeSRV:   "SRV",
	RRTypeOPT:   "OPT",
	RRTypeANY:   "ANY",
}

// IsKnown returns true if the RRType is one of the recognized types.
func (t RRType) IsKnown() bool {
	_, ok := rrTypeNames[t]
	return ok
}

// Code returns the raw 16-bit wire value.
func (t RRType) Code() uint16 {
	return uint16(t)
}

// String returns the textual representation of the RRType.
// For unrecognized types, it returns "UNKNOWN(<value>)".
func (t RRType) String() string {
	if name, ok := rrTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
}
