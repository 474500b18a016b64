package domain

import (
	"fmt"
	"strings"
	"time"
)

// BlockRuleKind defines how a rule matches names.
type BlockRuleKind uint8

const (
	// BlockRuleExact matches only the exact name.
	BlockRuleExact BlockRuleKind = iota
	// BlockRuleSuffix matches the name and every name below it.
	BlockRuleSuffix
)

func (k BlockRuleKind) String() string {
	switch k {
	case BlockRuleExact:
		return "exact"
	case BlockRuleSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("BlockRuleKind(%d)", k)
	}
}

// BlockRule is a single blocking rule read from a list file.
// Name is canonical: lowercase, ASCII (punycode), no trailing dot.
type BlockRule struct {
	Name    string
	Kind    BlockRuleKind
	Source  string // file the rule came from
	AddedAt time.Time
}

// NewBlockRule constructs a BlockRule and validates its fields.
func NewBlockRule(name string, kind BlockRuleKind, source string, addedAt time.Time) (BlockRule, error) {
	r := BlockRule{
		Name:    strings.TrimSpace(name),
		Kind:    kind,
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return BlockRule{}, err
	}
	return r, nil
}

// Validate checks the BlockRule for required fields and supported values.
func (r BlockRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	switch r.Kind {
	case BlockRuleExact, BlockRuleSuffix:
		return nil
	default:
		return fmt.Errorf("unsupported BlockRuleKind: %d", r.Kind)
	}
}

// Covers reports whether the rule applies to the canonical name cn.
func (r BlockRule) Covers(cn string) bool {
	if cn == r.Name {
		return true
	}
	return r.Kind == BlockRuleSuffix && strings.HasSuffix(cn, "."+r.Name)
}

// BlockDecision is the outcome of checking a question name against the blocklist.
type BlockDecision struct {
	Blocked     bool
	MatchedRule string
	Source      string
	Kind        BlockRuleKind
}

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() BlockDecision { return BlockDecision{} }

// DecisionFor materializes a blocking decision from the rule that matched.
func DecisionFor(r BlockRule) BlockDecision {
	return BlockDecision{Blocked: true, MatchedRule: r.Name, Source: r.Source, Kind: r.Kind}
}
