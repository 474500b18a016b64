// Package blocklist decides whether a question name is refused before it is
// forwarded. Reads go through a decision cache, then a Bloom pre-filter, then
// the persistent store; writes rebuild all three as one snapshot.
package blocklist

import "github.com/haukened/rr-fwd/internal/dns/domain"

// BloomFactory builds Bloom filters sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// DecisionCache caches block decisions by canonical name.
type DecisionCache interface {
	Get(name string) (domain.BlockDecision, bool)
	Put(name string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the persistent rule index.
// FirstMatch returns the exact rule for cn if one exists, otherwise the most
// specific suffix rule covering cn.
type Store interface {
	RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	FirstMatch(cn string) (domain.BlockRule, bool, error)
	Stats() StoreStats
	Close() error
}

// Repository is the composition layer that wires cache → bloom → store.
type Repository interface {
	Decide(name string) domain.BlockDecision
	UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	Stats() RepoStats
}
