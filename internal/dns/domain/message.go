package domain

import (
	"fmt"
	"math"
)

// Message is a complete DNS message: a header followed by the question, answer,
// authority and additional sections. Order within each section is significant.
type Message struct {
	Header     Header
	Questions  []Question
	Answers    []ResourceRecord
	Authority  []ResourceRecord
	Additional []ResourceRecord
}

// IsQuery reports whether the QR bit marks the message as a query.
func (m Message) IsQuery() bool {
	return !m.Header.Response
}

// IsResponse reports whether the QR bit marks the message as a response.
func (m Message) IsResponse() bool {
	return m.Header.Response
}

// SyncCounts overwrites the header counts with the actual section lengths.
// Caller-set counts are never trusted.
func (m *Message) SyncCounts() error {
	sections := []struct {
		name  string
		count int
		dst   *uint16
	}{
		{"question", len(m.Questions), &m.Header.QDCount},
		{"answer", len(m.Answers), &m.Header.ANCount},
		{"authority", len(m.Authority), &m.Header.NSCount},
		{"additional", len(m.Additional), &m.Header.ARCount},
	}
	for _, s := range sections {
		if s.count > math.MaxUint16 {
			return fmt.Errorf("too many %s entries: %d (max %d)", s.name, s.count, math.MaxUint16)
		}
	}
	for _, s := range sections {
		//gosec:disable G115 -- bounds checked above.
		*s.dst = uint16(s.count)
	}
	return nil
}

// SplitQuestions returns one single-question query per question, in order.
// Each copy keeps the transaction ID and the client's flags, with QR forced
// to query and the counts set to 1/0/0/0.
func (m Message) SplitQuestions() []Message {
	out := make([]Message, 0, len(m.Questions))
	for _, q := range m.Questions {
		h := m.Header
		h.Response = false
		h.QDCount = 1
		h.ANCount = 0
		h.NSCount = 0
		h.ARCount = 0
		out = append(out, Message{
			Header:    h,
			Questions: []Question{q},
		})
	}
	return out
}

// NewReply builds a locally generated response to query: same ID, opcode and
// RD flag, the questions echoed back, no records, and the given rcode.
func NewReply(query Message, rcode RCode) Message {
	questions := make([]Question, len(query.Questions))
	copy(questions, query.Questions)
	reply := Message{
		Header: Header{
			ID:               query.Header.ID,
			Response:         true,
			Opcode:           query.Header.Opcode,
			RecursionDesired: query.Header.RecursionDesired,
			RCode:            rcode,
		},
		Questions: questions,
	}
	_ = reply.SyncCounts()
	return reply
}
