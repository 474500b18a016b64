package parsers

import (
	"bufio"
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// ParsePlainList parses a newline-delimited list of names.
// A name is an exact rule unless it starts with "*." or ".", which makes it a
// suffix rule covering the name and everything below it. Comments start with
// '#'. Invalid names are skipped, and duplicates of the same name and kind keep
// the first occurrence.
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	scanner := bufio.NewScanner(r)

	// name and kind, so a list may hold both rules for one name
	seen := make(map[string]struct{})
	out := make([]domain.BlockRule, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		s := strings.TrimSpace(stripInlineComment(line))
		kind := ruleKindFromRaw(s)
		name, err := normalizeDomainName(s)
		if err != nil || !isValidFQDN(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": s, "error": err}, "skip_invalid_name")
			continue
		}

		seenKey := name + "|" + kind.String()
		if _, ok := seen[seenKey]; ok {
			continue
		}

		rule, err := domain.NewBlockRule(name, kind, source, now)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "error": err}, "skip_constructor_error")
			continue
		}
		out = append(out, rule)
		seen[seenKey] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}
