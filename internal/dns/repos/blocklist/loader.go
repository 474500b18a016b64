package blocklist

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/haukened/rr-fwd/internal/dns/common/clock"
	"github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/domain"
	"github.com/haukened/rr-fwd/internal/dns/repos/blocklist/parsers"
)

// OpenFunc opens a blocklist file for reading.
type OpenFunc func(path string) (io.ReadCloser, error)

// Loader reads blocklist files and installs their rules into a Repository
// as a single snapshot.
type Loader struct {
	repo   Repository
	paths  []string
	logger log.Logger
	clock  clock.Clock
	open   OpenFunc
}

// NewLoader creates a Loader for the given files. A nil open reads from disk.
func NewLoader(repo Repository, paths []string, logger log.Logger, clk clock.Clock, open OpenFunc) *Loader {
	if open == nil {
		open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	return &Loader{repo: repo, paths: paths, logger: logger, clock: clk, open: open}
}

// Load parses every file, merges the rules (first occurrence of a name and
// kind wins) and replaces the repository snapshot. Any unreadable file aborts
// the load and leaves the previous snapshot in place.
func (l *Loader) Load() (int, error) {
	now := l.clock.Now()
	seen := make(map[string]struct{})
	var rules []domain.BlockRule

	for _, path := range l.paths {
		parsed, err := l.parse(path, now)
		if err != nil {
			return 0, err
		}
		for _, r := range parsed {
			key := r.Kind.String() + "|" + r.Name
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			rules = append(rules, r)
		}
		l.logger.Debug(map[string]any{"path": path, "rules": len(parsed)}, "Parsed blocklist file")
	}

	version := l.repo.Stats().Store.Version + 1
	if err := l.repo.UpdateAll(rules, version, now.Unix()); err != nil {
		return 0, fmt.Errorf("install blocklist snapshot: %w", err)
	}
	return len(rules), nil
}

func (l *Loader) parse(path string, now time.Time) ([]domain.BlockRule, error) {
	f, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocklist %s: %w", path, err)
	}
	defer f.Close()
	rules, err := parsers.ParseFile(f, path, l.logger, now)
	if err != nil {
		return nil, fmt.Errorf("parse blocklist %s: %w", path, err)
	}
	return rules, nil
}
