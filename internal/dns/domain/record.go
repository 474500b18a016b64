package domain

import (
	"fmt"
	"math"
)

const (
	// MaxLabelLength is the longest a single label may be (RFC 1035 §2.3.4).
	MaxLabelLength = 63
	// MaxNameLength is the longest a wire-encoded name may be.
	MaxNameLength = 255
)

// ResourceRecord is an entry of the answer, authority or additional section.
// Data is opaque RDATA; its length is the record's RDLENGTH.
type ResourceRecord struct {
	Name  string
	Type  RRType
	Class RRClass
	TTL   uint32 // seconds
	Data  []byte
}

// NewResourceRecord constructs a ResourceRecord and validates its fields.
func NewResourceRecord(name string, rrtype RRType, class RRClass, ttl uint32, data []byte) (ResourceRecord, error) {
	rr := ResourceRecord{
		Name:  name,
		Type:  rrtype,
		Class: class,
		TTL:   ttl,
		Data:  data,
	}
	if err := rr.Validate(); err != nil {
		return ResourceRecord{}, err
	}
	return rr, nil
}

// Validate checks that the record fits the wire format.
func (rr ResourceRecord) Validate() error {
	if len(rr.Name) > MaxNameLength {
		return fmt.Errorf("record name exceeds %d bytes", MaxNameLength)
	}
	if len(rr.Data) > math.MaxUint16 {
		return fmt.Errorf("resource record data too large: %d bytes (max %d)", len(rr.Data), math.MaxUint16)
	}
	return nil
}

// RDLength returns the RDATA length as written on the wire.
func (rr ResourceRecord) RDLength() uint16 {
	//gosec:disable G115 -- Validate bounds len(Data) to MaxUint16.
	return uint16(len(rr.Data))
}

// Question returns the name/type/class triple of the record.
func (rr ResourceRecord) Question() Question {
	return Question{Name: rr.Name, Type: rr.Type, Class: rr.Class}
}
