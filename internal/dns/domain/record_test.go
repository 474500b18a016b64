package domain

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResourceRecord(t *testing.T) {
	rr, err := NewResourceRecord("www.example", RRTypeA, RRClassIN, 300, []byte{192, 0, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, uint16(4), rr.RDLength())
	assert.Equal(t, Question{Name: "www.example", Type: RRTypeA, Class: RRClassIN}, rr.Question())

	rr, err = NewResourceRecord("", RRType(65280), RRClass(3), 0, nil)
	require.NoError(t, err)
	assert.Zero(t, rr.RDLength())
}

func TestResourceRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rr      ResourceRecord
		wantErr string
	}{
		{"long name", ResourceRecord{Name: strings.Repeat("a", MaxNameLength+1)}, "record name exceeds"},
		{"max rdata", ResourceRecord{Data: make([]byte, math.MaxUint16)}, ""},
		{"rdata too large", ResourceRecord{Data: make([]byte, math.MaxUint16+1)}, "resource record data too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rr.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
