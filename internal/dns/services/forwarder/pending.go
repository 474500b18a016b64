package forwarder

import (
	"net/netip"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// pendingKey identifies a client query. Transaction IDs are chosen by
// clients, so the ID alone is not unique across clients.
type pendingKey struct {
	id     uint16
	client netip.AddrPort
}

// pendingQuery is a client query waiting for upstream answers.
type pendingQuery struct {
	key     pendingKey
	query   domain.Message
	created time.Time
	seq     uint64 // insertion order, lowest is oldest

	// why the entry left the table; an eviction with neither set dropped a live query
	done    bool
	expired bool
}

// multi reports whether the query was split into sub-queries.
func (p *pendingQuery) multi() bool {
	return len(p.query.Questions) > 1
}

// pendingTable holds pending queries in a bounded LRU. Entries are indexed
// by transaction ID so responses, which do not carry the client address, can
// find their candidates. Accumulators for split queries live beside the
// entries and are dropped with them.
type pendingTable struct {
	entries  *lru.Cache[pendingKey, *pendingQuery]
	byID     map[uint16][]pendingKey
	partials map[pendingKey]*partial
	nextSeq  uint64

	// called for entries evicted while still live
	onDropLive func(*pendingQuery)
}

func newPendingTable(size int, onDropLive func(*pendingQuery)) (*pendingTable, error) {
	t := &pendingTable{
		byID:       make(map[uint16][]pendingKey),
		partials:   make(map[pendingKey]*partial),
		onDropLive: onDropLive,
	}
	entries, err := lru.NewWithEvict(size, t.evicted)
	if err != nil {
		return nil, err
	}
	t.entries = entries
	return t, nil
}

// evicted runs for every entry leaving the cache, whether removed or pushed out.
func (t *pendingTable) evicted(key pendingKey, p *pendingQuery) {
	keys := t.byID[key.id]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(t.byID, key.id)
	} else {
		t.byID[key.id] = keys
	}
	delete(t.partials, key)

	if !p.done && !p.expired && t.onDropLive != nil {
		t.onDropLive(p)
	}
}

// add records a new pending query. An existing entry for the same client and
// ID (a retransmission) is replaced and returned.
func (t *pendingTable) add(key pendingKey, query domain.Message, now time.Time) (entry, replaced *pendingQuery) {
	if old, ok := t.entries.Peek(key); ok {
		old.done = true
		t.entries.Remove(key)
		replaced = old
	}
	t.nextSeq++
	entry = &pendingQuery{key: key, query: query, created: now, seq: t.nextSeq}
	t.entries.Add(key, entry)
	t.byID[key.id] = append(t.byID[key.id], key)
	return entry, replaced
}

// candidates returns the live entries for id, oldest first.
func (t *pendingTable) candidates(id uint16) []*pendingQuery {
	keys := t.byID[id]
	out := make([]*pendingQuery, 0, len(keys))
	for _, k := range keys {
		if p, ok := t.entries.Peek(k); ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// partialFor locates or creates the accumulator of a split query.
func (t *pendingTable) partialFor(p *pendingQuery) *partial {
	if acc, ok := t.partials[p.key]; ok {
		return acc
	}
	acc := newPartial(p.query.Questions)
	t.partials[p.key] = acc
	return acc
}

// complete drops a finished entry and its accumulator.
func (t *pendingTable) complete(p *pendingQuery) {
	p.done = true
	t.entries.Remove(p.key)
}

// expire drops entries created at or before cutoff and returns how many.
func (t *pendingTable) expire(cutoff time.Time) int {
	n := 0
	// Keys is oldest first and entries are only ever Peeked, so it is in insertion order.
	for _, k := range t.entries.Keys() {
		p, ok := t.entries.Peek(k)
		if !ok {
			continue
		}
		if p.created.After(cutoff) {
			break
		}
		p.expired = true
		t.entries.Remove(k)
		n++
	}
	return n
}

func (t *pendingTable) len() int {
	return t.entries.Len()
}
