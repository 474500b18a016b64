// Package forwarder correlates client queries with upstream responses.
//
// A query with one question is relayed to the upstream unchanged and the
// upstream's reply is relayed back unchanged. A query with several questions
// is split into one single-question query per question; the sub-responses are
// collected and merged into one response carrying every question and answer
// in the order the client asked.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/haukened/rr-fwd/internal/dns/common/clock"
	"github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/common/rrdata"
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

const (
	DefaultPendingTTL = 10 * time.Second
	DefaultMaxPending = 4096
)

var (
	// ErrUnmatchedResponse is returned for an upstream response whose ID has
	// no pending query.
	ErrUnmatchedResponse = errors.New("response matches no pending query")

	// ErrUnexpectedSource is returned for a response that did not come from
	// the upstream.
	ErrUnexpectedSource = errors.New("response from unexpected source")
)

// Upstream is where queries are forwarded.
type Upstream interface {
	// AddrPort fails when forwarding is disabled.
	AddrPort() (netip.AddrPort, error)
	Matches(from netip.AddrPort) bool
}

// Blocklist decides whether a question name must not be forwarded.
type Blocklist interface {
	Decide(name string) domain.BlockDecision
}

// Outbound is a datagram to send. Raw, when set, is sent as is; otherwise
// Msg is encoded.
type Outbound struct {
	To  netip.AddrPort
	Msg domain.Message
	Raw []byte
}

// Options configures a Forwarder. Zero values select defaults; a nil
// Blocklist blocks nothing and a nil Upstream disables forwarding.
type Options struct {
	Upstream   Upstream
	Blocklist  Blocklist
	Clock      clock.Clock
	Logger     log.Logger
	PendingTTL time.Duration
	MaxPending int
}

// Stats are cumulative counters since construction, plus the current table size.
type Stats struct {
	Queries      uint64 // client queries handled
	Responses    uint64 // upstream responses handled
	Forwarded    uint64 // datagrams sent upstream
	Merged       uint64 // merged responses sent to clients
	Relayed      uint64 // single-question responses relayed verbatim
	LocalReplies uint64 // responses generated without the upstream
	Unmatched    uint64
	Collisions   uint64 // responses whose ID had several pending queries
	Expired      uint64
	Evicted      uint64 // live entries pushed out by the table bound
	Blocked      uint64 // questions refused by the blocklist
	Pending      int
}

// Forwarder is the correlation engine. It is safe for concurrent use; the
// UDP transport calls it from a single loop.
type Forwarder struct {
	mu        sync.Mutex
	upstream  Upstream
	blocklist Blocklist
	clock     clock.Clock
	logger    log.Logger
	ttl       time.Duration
	table     *pendingTable
	stats     Stats
}

// New creates a Forwarder.
func New(opts Options) (*Forwarder, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}

	f := &Forwarder{
		upstream:  opts.Upstream,
		blocklist: opts.Blocklist,
		clock:     opts.Clock,
		logger:    opts.Logger,
		ttl:       opts.PendingTTL,
	}
	table, err := newPendingTable(opts.MaxPending, f.droppedLive)
	if err != nil {
		return nil, fmt.Errorf("pending table: %w", err)
	}
	f.table = table
	return f, nil
}

// HandleMessage processes one decoded datagram received from from and returns
// the datagrams to send in response. raw is the datagram as received.
// Queries (QR=0) are treated as coming from clients and responses (QR=1) as
// coming from the upstream.
func (f *Forwarder) HandleMessage(ctx context.Context, msg domain.Message, raw []byte, from netip.AddrPort) ([]Outbound, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sweepLocked(f.clock.Now())
	if msg.IsResponse() {
		return f.handleResponse(msg, raw, from)
	}
	return f.handleQuery(msg, raw, from), nil
}

// Sweep drops pending queries older than the pending TTL and returns how many
// were dropped. Nothing is re-sent.
func (f *Forwarder) Sweep(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweepLocked(now)
}

func (f *Forwarder) sweepLocked(now time.Time) int {
	n := f.table.expire(now.Add(-f.ttl))
	if n > 0 {
		f.stats.Expired += uint64(n)
		f.logger.Debug(map[string]any{
			"expired": n,
			"pending": f.table.len(),
		}, "Expired abandoned pending queries")
	}
	return n
}

// Stats returns a snapshot of the counters.
func (f *Forwarder) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats
	s.Pending = f.table.len()
	return s
}

func (f *Forwarder) handleQuery(msg domain.Message, raw []byte, from netip.AddrPort) []Outbound {
	f.stats.Queries++

	switch {
	case msg.Header.Opcode != domain.OpcodeQuery:
		return f.localReply(msg, from, domain.NOTIMP, "unsupported opcode")
	case len(msg.Questions) == 0:
		return f.localReply(msg, from, domain.FORMERR, "query without questions")
	}

	var upstreamAddr netip.AddrPort
	if f.upstream != nil {
		if ap, err := f.upstream.AddrPort(); err == nil {
			upstreamAddr = ap
		}
	}
	if !upstreamAddr.IsValid() {
		return f.localReply(msg, from, domain.REFUSED, "forwarding disabled")
	}

	blocked, nBlocked := f.checkBlocklist(msg, from)
	if nBlocked == len(msg.Questions) {
		return f.localReply(msg, from, domain.REFUSED, "all questions blocked")
	}

	key := pendingKey{id: msg.Header.ID, client: from}
	entry, replaced := f.table.add(key, msg, f.clock.Now())
	if replaced != nil {
		f.logger.Debug(map[string]any{
			"id":     key.id,
			"client": from.String(),
		}, "Client retransmitted query, replacing pending entry")
	}

	if !entry.multi() {
		f.stats.Forwarded++
		f.logger.Debug(map[string]any{
			"id":       key.id,
			"client":   from.String(),
			"question": msg.Questions[0].String(),
		}, "Forwarding single-question query")
		return []Outbound{{To: upstreamAddr, Msg: msg, Raw: raw}}
	}

	var acc *partial
	out := make([]Outbound, 0, len(msg.Questions)-nBlocked)
	for i, sub := range msg.SplitQuestions() {
		if blocked[i] {
			if acc == nil {
				acc = f.table.partialFor(entry)
			}
			acc.fillLocal(i, domain.REFUSED)
			continue
		}
		out = append(out, Outbound{To: upstreamAddr, Msg: sub})
	}
	f.stats.Forwarded += uint64(len(out))
	f.logger.Debug(map[string]any{
		"id":        key.id,
		"client":    from.String(),
		"questions": len(msg.Questions),
		"forwarded": len(out),
	}, "Split multi-question query")
	return out
}

// checkBlocklist marks the blocked questions of msg, in question order, and
// logs each one.
func (f *Forwarder) checkBlocklist(msg domain.Message, from netip.AddrPort) ([]bool, int) {
	blocked := make([]bool, len(msg.Questions))
	if f.blocklist == nil {
		return blocked, 0
	}
	n := 0
	for i, q := range msg.Questions {
		d := f.blocklist.Decide(q.Name)
		if !d.Blocked {
			continue
		}
		blocked[i] = true
		n++
		f.stats.Blocked++
		f.logger.Info(map[string]any{
			"id":     msg.Header.ID,
			"client": from.String(),
			"name":   q.Name,
			"rule":   d.MatchedRule,
			"kind":   d.Kind.String(),
			"source": d.Source,
		}, "Question blocked")
	}
	return blocked, n
}

func (f *Forwarder) localReply(msg domain.Message, to netip.AddrPort, rcode domain.RCode, reason string) []Outbound {
	f.stats.LocalReplies++
	f.logger.Debug(map[string]any{
		"id":     msg.Header.ID,
		"client": to.String(),
		"rcode":  rcode.String(),
		"reason": reason,
	}, "Answering locally")
	return []Outbound{{To: to, Msg: domain.NewReply(msg, rcode)}}
}

func (f *Forwarder) handleResponse(msg domain.Message, raw []byte, from netip.AddrPort) ([]Outbound, error) {
	if f.upstream == nil || !f.upstream.Matches(from) {
		f.logger.Warn(map[string]any{
			"id":   msg.Header.ID,
			"from": from.String(),
		}, "Dropping response from unexpected source")
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedSource, from)
	}
	f.stats.Responses++

	entry := f.match(msg)
	if entry == nil {
		f.stats.Unmatched++
		f.logger.Warn(map[string]any{
			"id":   msg.Header.ID,
			"from": from.String(),
		}, "Dropping unmatched upstream response")
		return nil, fmt.Errorf("%w: id %d", ErrUnmatchedResponse, msg.Header.ID)
	}

	if !entry.multi() {
		f.table.complete(entry)
		f.stats.Relayed++
		f.logger.Debug(map[string]any{
			"id":      msg.Header.ID,
			"client":  entry.key.client.String(),
			"rcode":   msg.Header.RCode.String(),
			"answers": len(msg.Answers),
		}, "Relaying upstream response")
		return []Outbound{{To: entry.key.client, Msg: msg, Raw: raw}}, nil
	}

	acc := f.table.partialFor(entry)
	slot, ok := acc.file(msg)
	if !ok {
		f.logger.Debug(map[string]any{
			"id":     msg.Header.ID,
			"client": entry.key.client.String(),
		}, "Ignoring duplicate sub-response")
		return nil, nil
	}
	f.logger.Debug(map[string]any{
		"id":        msg.Header.ID,
		"client":    entry.key.client.String(),
		"slot":      slot,
		"answers":   len(msg.Answers),
		"remaining": acc.remaining,
	}, "Collected sub-response")
	if !acc.complete() {
		return nil, nil
	}

	merged := acc.merge(entry.query)
	f.table.complete(entry)
	f.stats.Merged++
	f.logger.Debug(map[string]any{
		"id":        merged.Header.ID,
		"client":    entry.key.client.String(),
		"questions": len(merged.Questions),
		"answers":   renderAnswers(merged.Answers),
		"rcode":     merged.Header.RCode.String(),
	}, "Sending merged response")
	return []Outbound{{To: entry.key.client, Msg: merged}}, nil
}

// match picks the pending query a response belongs to. With several
// candidates for one ID, those still waiting for the response's question are
// preferred and the oldest wins.
func (f *Forwarder) match(msg domain.Message) *pendingQuery {
	candidates := f.table.candidates(msg.Header.ID)
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	f.stats.Collisions++
	var waiting []*pendingQuery
	if len(msg.Questions) > 0 {
		for _, c := range candidates {
			if f.awaits(c, msg.Questions[0]) {
				waiting = append(waiting, c)
			}
		}
	}
	chosen := candidates[0]
	if len(waiting) > 0 {
		chosen = waiting[0]
	}
	if len(waiting) != 1 {
		clients := make([]string, 0, len(candidates))
		for _, c := range candidates {
			clients = append(clients, c.key.client.String())
		}
		f.logger.Warn(map[string]any{
			"id":      msg.Header.ID,
			"clients": clients,
			"chosen":  chosen.key.client.String(),
		}, "Ambiguous transaction ID, routing response to oldest pending query")
	}
	return chosen
}

// awaits reports whether p still needs an answer for q.
func (f *Forwarder) awaits(p *pendingQuery, q domain.Question) bool {
	if !p.multi() {
		return p.query.Questions[0].Matches(q)
	}
	if acc, ok := f.table.partials[p.key]; ok {
		return acc.hasOpenMatch(q)
	}
	for _, pq := range p.query.Questions {
		if pq.Matches(q) {
			return true
		}
	}
	return false
}

// droppedLive is called when the table bound pushes out a query that was
// still waiting for answers.
func (f *Forwarder) droppedLive(p *pendingQuery) {
	f.stats.Evicted++
	f.logger.Warn(map[string]any{
		"id":        p.key.id,
		"client":    p.key.client.String(),
		"questions": len(p.query.Questions),
	}, "Pending table full, dropped oldest query")
}

// renderAnswers formats records as "name type rdata" for debug logs.
func renderAnswers(rrs []domain.ResourceRecord) []string {
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		data, err := rrdata.Decode(rr.Type, rr.Data)
		if err != nil {
			data = fmt.Sprintf("<%v>", err)
		}
		out = append(out, fmt.Sprintf("%s %s %s", rr.Name, rr.Type, data))
	}
	return out
}
