package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuery() Message {
	return Message{
		Header: Header{
			ID:               0xabcd,
			Opcode:           OpcodeQuery,
			RecursionDesired: true,
			Z:                1,
			QDCount:          9, // stale on purpose
		},
		Questions: []Question{
			{Name: "a.example", Type: RRTypeA, Class: RRClassIN},
			{Name: "b.example", Type: RRTypeAAAA, Class: RRClassIN},
			{Name: "c.example", Type: RRTypeMX, Class: RRClassIN},
		},
		Additional: []ResourceRecord{{Name: "", Type: RRTypeOPT, Class: 4096}},
	}
}

func TestMessage_IsQueryIsResponse(t *testing.T) {
	m := testQuery()
	assert.True(t, m.IsQuery())
	assert.False(t, m.IsResponse())

	m.Header.Response = true
	assert.False(t, m.IsQuery())
	assert.True(t, m.IsResponse())
}

func TestMessage_SyncCounts(t *testing.T) {
	m := testQuery()
	m.Header.ANCount = 4
	require.NoError(t, m.SyncCounts())
	assert.Equal(t, uint16(3), m.Header.QDCount)
	assert.Equal(t, uint16(0), m.Header.ANCount)
	assert.Equal(t, uint16(0), m.Header.NSCount)
	assert.Equal(t, uint16(1), m.Header.ARCount)
}

func TestMessage_SyncCountsOverflow(t *testing.T) {
	m := Message{Header: Header{QDCount: 1}}
	m.Answers = make([]ResourceRecord, math.MaxUint16+1)
	err := m.SyncCounts()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many answer entries")
	assert.Equal(t, uint16(1), m.Header.QDCount, "counts untouched on error")
}

func TestMessage_SplitQuestions(t *testing.T) {
	m := testQuery()
	m.Header.Response = true

	parts := m.SplitQuestions()
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, m.Header.ID, p.Header.ID)
		assert.False(t, p.Header.Response)
		assert.True(t, p.Header.RecursionDesired)
		assert.Equal(t, uint8(1), p.Header.Z)
		assert.Equal(t, uint16(1), p.Header.QDCount)
		assert.Zero(t, p.Header.ANCount)
		assert.Zero(t, p.Header.NSCount)
		assert.Zero(t, p.Header.ARCount)
		assert.Equal(t, []Question{m.Questions[i]}, p.Questions)
		assert.Empty(t, p.Additional, "additional records are not copied")
	}

	assert.Empty(t, Message{}.SplitQuestions())
}

func TestNewReply(t *testing.T) {
	q := testQuery()
	reply := NewReply(q, REFUSED)

	assert.Equal(t, q.Header.ID, reply.Header.ID)
	assert.True(t, reply.Header.Response)
	assert.Equal(t, OpcodeQuery, reply.Header.Opcode)
	assert.True(t, reply.Header.RecursionDesired)
	assert.False(t, reply.Header.RecursionAvailable)
	assert.Zero(t, reply.Header.Z)
	assert.Equal(t, REFUSED, reply.Header.RCode)
	assert.Equal(t, q.Questions, reply.Questions)
	assert.Equal(t, uint16(3), reply.Header.QDCount)
	assert.Empty(t, reply.Answers)
	assert.Empty(t, reply.Additional)

	reply.Questions[0].Name = "changed.example"
	assert.Equal(t, "a.example", q.Questions[0].Name, "questions are copied")
}

func TestNewReply_KeepsOpcode(t *testing.T) {
	q := Message{Header: Header{ID: 7, Opcode: OpcodeStatus}}
	reply := NewReply(q, NOTIMP)
	assert.Equal(t, OpcodeStatus, reply.Header.Opcode)
	assert.Equal(t, NOTIMP, reply.Header.RCode)
	assert.Zero(t, reply.Header.QDCount)
}
