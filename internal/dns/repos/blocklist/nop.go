package blocklist

import "github.com/haukened/rr-fwd/internal/dns/domain"

// Nop is the Repository used when no blocklist files are configured.
type Nop struct{}

func (Nop) Decide(string) domain.BlockDecision { return domain.EmptyDecision() }

func (Nop) UpdateAll([]domain.BlockRule, uint64, int64) error { return nil }

func (Nop) Stats() RepoStats { return RepoStats{} }

var _ Repository = Nop{}
