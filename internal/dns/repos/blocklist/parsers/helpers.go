// Package parsers turns blocklist files into domain.BlockRule values.
// Two formats are understood: plain newline-delimited name lists and
// /etc/hosts-style files. Names are converted to their ASCII (punycode) form.
package parsers

import (
	"strings"
	"unicode"

	"golang.org/x/net/idna"

	"github.com/haukened/rr-fwd/internal/dns/common/utils"
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// idnaProfile maps names for lookup but tolerates underscores, which
// tracker lists use in service labels.
var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// ruleKindFromRaw returns BlockRuleSuffix if raw begins with "*." or ".".
func ruleKindFromRaw(raw string) domain.BlockRuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.BlockRuleSuffix
	}
	return domain.BlockRuleExact
}

// isValidFQDN checks the shape of a canonical name:
//   - at most 255 characters, none of them '*', '@', '/', ':' or blank
//   - at least two labels, each 1 to 63 characters
//   - the first label starts with a letter, digit or underscore
func isValidFQDN(name string) bool {
	if len(name) > domain.MaxNameLength || strings.ContainsAny(name, "*@/: \t") {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > domain.MaxLabelLength || len(label) == 0 {
			return false
		}
	}
	first := []rune(labels[0])[0]
	return isAlphaNumeric(first) || first == '_'
}

// normalizeDomainName strips a suffix marker, converts the name to ASCII and
// returns its canonical form.
func normalizeDomainName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	name = strings.TrimRight(name, ".")
	if name == "" {
		return "", nil
	}
	ascii, err := idnaProfile.ToASCII(name)
	if err != nil {
		return "", err
	}
	return utils.CanonicalDNSName(ascii), nil
}

func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripLineBOM removes a UTF-8 byte order mark from the start of line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether line is blank or a whole-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}
