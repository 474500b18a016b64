package blocklist

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int // 0 for a disabled cache
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// StoreStats reports rule counts and snapshot metadata of the store.
type StoreStats struct {
	Version     uint64
	UpdatedUnix int64
	ExactKeys   uint64
	SuffixKeys  uint64
}

// RepoStats combines the repository's own counters with its parts'.
type RepoStats struct {
	Decisions    uint64
	BloomRejects uint64 // answered "not blocked" without touching cache or store
	StoreErrors  uint64
	Cache        CacheStats
	Store        StoreStats
}
