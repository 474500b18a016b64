package forwarder

import (
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// subAnswer is the outcome for one question of a split query.
type subAnswer struct {
	filled    bool
	truncated bool
	rcode     domain.RCode
	answers   []domain.ResourceRecord
	authority []domain.ResourceRecord
}

// partial accumulates sub-responses of a split query. Slots follow the
// original question order.
type partial struct {
	questions []domain.Question
	slots     []subAnswer
	remaining int

	// header of the first upstream sub-response; supplies RA and AA
	first    domain.Header
	hasFirst bool
}

func newPartial(questions []domain.Question) *partial {
	return &partial{
		questions: questions,
		slots:     make([]subAnswer, len(questions)),
		remaining: len(questions),
	}
}

// fillLocal answers slot i without asking the upstream.
func (p *partial) fillLocal(i int, rcode domain.RCode) {
	if p.slots[i].filled {
		return
	}
	p.slots[i] = subAnswer{filled: true, rcode: rcode}
	p.remaining--
}

// file stores resp in the first open slot asking the same question. A
// response whose question was already answered is a duplicate and is
// rejected; one matching no question at all takes the first open slot.
func (p *partial) file(resp domain.Message) (slot int, ok bool) {
	slot = -1
	if len(resp.Questions) > 0 {
		rq := resp.Questions[0]
		seen := false
		for i, q := range p.questions {
			if !q.Matches(rq) {
				continue
			}
			seen = true
			if !p.slots[i].filled {
				slot = i
				break
			}
		}
		if slot < 0 && seen {
			return -1, false
		}
	}
	if slot < 0 {
		slot = p.firstOpen()
	}
	if slot < 0 {
		return -1, false
	}

	p.slots[slot] = subAnswer{
		filled:    true,
		truncated: resp.Header.Truncated,
		rcode:     resp.Header.RCode,
		answers:   resp.Answers,
		authority: resp.Authority,
	}
	p.remaining--
	if !p.hasFirst {
		p.first = resp.Header
		p.hasFirst = true
	}
	return slot, true
}

// hasOpenMatch reports whether q would fill an open slot.
func (p *partial) hasOpenMatch(q domain.Question) bool {
	for i, pq := range p.questions {
		if !p.slots[i].filled && pq.Matches(q) {
			return true
		}
	}
	return false
}

func (p *partial) firstOpen() int {
	for i := range p.slots {
		if !p.slots[i].filled {
			return i
		}
	}
	return -1
}

func (p *partial) complete() bool {
	return p.remaining == 0
}

// merge builds the single response for query from the filled slots.
// ID, opcode and RD come from the query; RA and AA from the first upstream
// sub-response. TC is set when any sub-response was truncated. The rcode is
// the first non-NOERROR in question order.
// Additional records are not carried over since OPT records are per message.
func (p *partial) merge(query domain.Message) domain.Message {
	h := domain.Header{
		ID:               query.Header.ID,
		Response:         true,
		Opcode:           query.Header.Opcode,
		RecursionDesired: query.Header.RecursionDesired,
		RCode:            domain.NOERROR,
	}
	if p.hasFirst {
		h.RecursionAvailable = p.first.RecursionAvailable
		h.Authoritative = p.first.Authoritative
	}

	var answers, authority []domain.ResourceRecord
	for _, s := range p.slots {
		if h.RCode == domain.NOERROR && s.rcode != domain.NOERROR {
			h.RCode = s.rcode
		}
		h.Truncated = h.Truncated || s.truncated
		answers = append(answers, s.answers...)
		authority = append(authority, s.authority...)
	}

	questions := make([]domain.Question, len(p.questions))
	copy(questions, p.questions)
	merged := domain.Message{
		Header:    h,
		Questions: questions,
		Answers:   answers,
		Authority: authority,
	}
	_ = merged.SyncCounts()
	return merged
}
