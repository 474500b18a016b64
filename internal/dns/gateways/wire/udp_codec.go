package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// fixed trailer sizes after a name
const (
	questionFixedSize = 4  // QTYPE, QCLASS
	recordFixedSize   = 10 // TYPE, CLASS, TTL, RDLENGTH
)

// sectionCap bounds a capacity hint by what the remaining bytes could hold.
func sectionCap(count, remaining, fixed int) int {
	return min(count, remaining/(fixed+1))
}

// udpCodec implements the DNSCodec interface for standard DNS over UDP messages.
type udpCodec struct {
	logger log.Logger
}

// NewUDPCodec creates and returns a new instance of udpCodec using the provided logger.
func NewUDPCodec(logger log.Logger) *udpCodec {
	return &udpCodec{
		logger: logger,
	}
}

// DecodeMessage parses a complete DNS message. Every section is read
// according to the header counts; bytes after the last declared record are
// ignored.
func (c *udpCodec) DecodeMessage(data []byte) (domain.Message, error) {
	header, err := decodeHeader(data)
	if err != nil {
		return domain.Message{}, err
	}

	offset := domain.HeaderSize
	questions, offset, err := decodeQuestions(data, offset, int(header.QDCount))
	if err != nil {
		return domain.Message{}, err
	}
	answers, offset, err := decodeRecords(data, offset, int(header.ANCount), "answer")
	if err != nil {
		return domain.Message{}, err
	}
	authority, offset, err := decodeRecords(data, offset, int(header.NSCount), "authority")
	if err != nil {
		return domain.Message{}, err
	}
	additional, offset, err := decodeRecords(data, offset, int(header.ARCount), "additional")
	if err != nil {
		return domain.Message{}, err
	}

	if offset < len(data) {
		c.logger.Debug(map[string]any{
			"id":       header.ID,
			"trailing": len(data) - offset,
		}, "Ignoring trailing bytes after last record")
	}

	return domain.Message{
		Header:     header,
		Questions:  questions,
		Answers:    answers,
		Authority:  authority,
		Additional: additional,
	}, nil
}

// EncodeMessage serializes msg without name compression. Header counts are
// taken from the section lengths, not from msg.Header.
func (c *udpCodec) EncodeMessage(msg domain.Message) ([]byte, error) {
	if err := msg.SyncCounts(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	var buf bytes.Buffer
	header := encodeHeader(msg.Header)
	buf.Write(header[:])

	c.logger.Debug(map[string]any{
		"step": "header_written",
		"id":   msg.Header.ID,
		"qd":   msg.Header.QDCount,
		"an":   msg.Header.ANCount,
		"ns":   msg.Header.NSCount,
		"ar":   msg.Header.ARCount,
	}, "Wrote DNS message header")

	for _, q := range msg.Questions {
		if err := encodeQuestion(&buf, q); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]domain.ResourceRecord{msg.Answers, msg.Authority, msg.Additional} {
		for _, rr := range section {
			if err := encodeRecord(&buf, rr); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Debug(map[string]any{
		"step": "message_written",
		"id":   msg.Header.ID,
		"size": buf.Len(),
	}, "Encoded DNS message")

	return buf.Bytes(), nil
}

func decodeQuestions(data []byte, offset, count int) ([]domain.Question, int, error) {
	if count == 0 {
		return nil, offset, nil
	}
	questions := make([]domain.Question, 0, sectionCap(count, len(data)-offset, questionFixedSize))
	for i := 0; i < count; i++ {
		name, n, err := decodeName(data, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("question %d: %w", i, err)
		}
		offset += n
		if offset+questionFixedSize > len(data) {
			return nil, 0, fmt.Errorf("%w: question %d truncated", ErrMalformed, i)
		}
		questions = append(questions, domain.Question{
			Name:  name,
			Type:  domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2])),
			Class: domain.RRClass(binary.BigEndian.Uint16(data[offset+2 : offset+4])),
		})
		offset += questionFixedSize
	}
	return questions, offset, nil
}

func decodeRecords(data []byte, offset, count int, section string) ([]domain.ResourceRecord, int, error) {
	if count == 0 {
		return nil, offset, nil
	}
	records := make([]domain.ResourceRecord, 0, sectionCap(count, len(data)-offset, recordFixedSize))
	for i := 0; i < count; i++ {
		name, n, err := decodeName(data, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("%s record %d: %w", section, i, err)
		}
		offset += n
		if offset+recordFixedSize > len(data) {
			return nil, 0, fmt.Errorf("%w: %s record %d truncated", ErrMalformed, section, i)
		}
		rrType := binary.BigEndian.Uint16(data[offset : offset+2])
		rrClass := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
		rdlen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
		offset += recordFixedSize
		if offset+rdlen > len(data) {
			return nil, 0, fmt.Errorf("%w: %s record %d rdata needs %d bytes, %d left", ErrMalformed, section, i, rdlen, len(data)-offset)
		}
		rdata := make([]byte, rdlen)
		copy(rdata, data[offset:offset+rdlen])
		offset += rdlen

		records = append(records, domain.ResourceRecord{
			Name:  name,
			Type:  domain.RRType(rrType),
			Class: domain.RRClass(rrClass),
			TTL:   ttl,
			Data:  rdata,
		})
	}
	return records, offset, nil
}

func encodeQuestion(buf *bytes.Buffer, q domain.Question) error {
	name, err := encodeName(q.Name)
	if err != nil {
		return err
	}
	buf.Write(name)
	_ = binary.Write(buf, binary.BigEndian, q.Type.Code())
	_ = binary.Write(buf, binary.BigEndian, q.Class.Code())
	return nil
}

func encodeRecord(buf *bytes.Buffer, rr domain.ResourceRecord) error {
	if err := rr.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	name, err := encodeName(rr.Name)
	if err != nil {
		return err
	}
	buf.Write(name)
	_ = binary.Write(buf, binary.BigEndian, rr.Type.Code())
	_ = binary.Write(buf, binary.BigEndian, rr.Class.Code())
	_ = binary.Write(buf, binary.BigEndian, rr.TTL)
	_ = binary.Write(buf, binary.BigEndian, rr.RDLength())
	buf.Write(rr.Data)
	return nil
}
