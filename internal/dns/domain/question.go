package domain

import (
	"fmt"

	"github.com/haukened/rr-fwd/internal/dns/common/utils"
)

// Question is one entry of the question section.
// Name holds the labels joined by '.', with case preserved and no trailing dot;
// the root name is the empty string.
type Question struct {
	Name  string
	Type  RRType
	Class RRClass
}

// NewQuestion constructs a Question and validates its fields.
func NewQuestion(name string, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		Name:  name,
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks whether the Question fields can be put on the wire.
// Unrecognized types and classes are allowed; they are forwarded as-is.
func (q Question) Validate() error {
	if len(q.Name) > MaxNameLength {
		return fmt.Errorf("question name exceeds %d bytes", MaxNameLength)
	}
	return nil
}

// Matches reports whether two questions ask the same thing.
// Names compare case-insensitively, ignoring a trailing dot.
func (q Question) Matches(other Question) bool {
	return q.Type == other.Type &&
		q.Class == other.Class &&
		utils.CanonicalDNSName(q.Name) == utils.CanonicalDNSName(other.Name)
}

func (q Question) String() string {
	return fmt.Sprintf("%s %s %s", q.Name, q.Class, q.Type)
}
