package blocklist

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/common/utils"
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// repository implements Repository by composing a Store, a Bloom filter
// built by a factory, and a DecisionCache.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   DecisionCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64
	logger  log.Logger
	// generation counts installed snapshots; guarded by mu
	generation uint64

	decisions    atomic.Uint64
	bloomRejects atomic.Uint64
	storeErrors  atomic.Uint64
}

// NewRepository constructs a Repository.
// fpRate is the target false-positive rate for the Bloom filter when rebuilding.
func NewRepository(store Store, cache DecisionCache, factory BloomFactory, fpRate float64, logger log.Logger) Repository {
	return &repository{store: store, cache: cache, factory: factory, fpRate: fpRate, logger: logger}
}

// Decide returns the BlockDecision for name.
// A store failure is logged and the name is allowed.
func (r *repository) Decide(name string) domain.BlockDecision {
	r.decisions.Add(1)
	cn := utils.CanonicalDNSName(name)
	if cn == "" {
		return domain.EmptyDecision()
	}
	if !r.checkBloom(cn) {
		r.bloomRejects.Add(1)
		return domain.EmptyDecision()
	}
	d, gen, ok := r.checkCache(cn)
	if ok {
		return d
	}
	dec, ok := r.checkStore(cn)
	if ok {
		r.updateCache(cn, dec, gen)
	}
	return dec
}

// UpdateAll rebuilds the store, then swaps in a fresh Bloom filter and
// purges the decision cache.
func (r *repository) UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	bf := r.factory.New(uint64(len(rules)), r.fpRate)
	for _, ru := range rules {
		switch ru.Kind {
		case domain.BlockRuleExact:
			bf.Add(exactKey(ru.Name))
		case domain.BlockRuleSuffix:
			bf.Add(suffixKey(ru.Name))
		}
	}

	r.mu.Lock()
	r.bloom = bf
	r.generation++
	r.cache.Purge()
	r.mu.Unlock()

	r.logger.Info(map[string]any{
		"rules":   len(rules),
		"version": version,
	}, "Blocklist snapshot loaded")
	return nil
}

func (r *repository) Stats() RepoStats {
	r.mu.RLock()
	cs := r.cache.Stats()
	r.mu.RUnlock()
	return RepoStats{
		Decisions:    r.decisions.Load(),
		BloomRejects: r.bloomRejects.Load(),
		StoreErrors:  r.storeErrors.Load(),
		Cache:        cs,
		Store:        r.store.Stats(),
	}
}

// Bloom keys carry the rule kind so an exact rule never satisfies a suffix probe.
func exactKey(cn string) []byte  { return []byte("=" + cn) }
func suffixKey(cn string) []byte { return []byte("*" + cn) }

// checkBloom reports whether the store must be consulted. With no filter
// loaded every name is a candidate.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	if bf.MightContain(exactKey(cn)) {
		return true
	}
	for anchor := cn; anchor != ""; anchor = parent(anchor) {
		if bf.MightContain(suffixKey(anchor)) {
			return true
		}
	}
	return false
}

// parent strips the leftmost label; the parent of a single label is "".
func parent(cn string) string {
	if i := strings.IndexByte(cn, '.'); i >= 0 {
		return cn[i+1:]
	}
	return ""
}

// checkCache also returns the snapshot generation the lookup ran against.
func (r *repository) checkCache(cn string) (domain.BlockDecision, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.cache.Get(cn)
	return d, r.generation, ok
}

// checkStore consults the store; ok is false when the store failed and the
// decision must not be cached.
func (r *repository) checkStore(cn string) (domain.BlockDecision, bool) {
	rule, found, err := r.store.FirstMatch(cn)
	if err != nil {
		r.storeErrors.Add(1)
		r.logger.Warn(map[string]any{
			"name":  cn,
			"error": err,
		}, "Blocklist store lookup failed, allowing")
		return domain.EmptyDecision(), false
	}
	if !found {
		return domain.EmptyDecision(), true
	}
	return domain.DecisionFor(rule), true
}

// updateCache stores dec unless a new snapshot was installed since gen, in
// which case dec may reflect the old rules.
func (r *repository) updateCache(cn string, dec domain.BlockDecision, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return
	}
	r.cache.Put(cn, dec)
}
