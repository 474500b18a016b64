package parsers

import (
	"bufio"
	"bytes"
	"io"
	"net/netip"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

// Format identifies a blocklist file layout.
type Format int

const (
	FormatPlain Format = iota
	FormatHosts
)

func (f Format) String() string {
	if f == FormatHosts {
		return "hosts"
	}
	return "plain"
}

// DetectFormat looks at the first non-comment line: a leading IP address
// field means a hosts file.
func DetectFormat(data []byte) Format {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}
		fields := strings.Fields(stripInlineComment(line))
		if len(fields) == 0 {
			continue
		}
		if _, err := netip.ParseAddr(fields[0]); err == nil {
			return FormatHosts
		}
		return FormatPlain
	}
	return FormatPlain
}

// ParseFile reads r fully and parses it with the parser matching its format.
func ParseFile(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	format := DetectFormat(data)
	logger.Debug(map[string]any{"source": source, "format": format.String()}, "parse_file_format")
	if format == FormatHosts {
		return ParseHostsFile(bytes.NewReader(data), source, logger, now)
	}
	return ParsePlainList(bytes.NewReader(data), source, logger, now)
}
