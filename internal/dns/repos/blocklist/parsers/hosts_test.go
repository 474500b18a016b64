package parsers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/domain"
)

func TestParseHostsFile(t *testing.T) {
	now := time.Unix(1700000000, 0)
	input := strings.Join([]string{
		"# StevenBlack-style hosts",
		"127.0.0.1 localhost",
		"::1 localhost ip6-localhost",
		"0.0.0.0 ads.example.com tracker.example.com # two names",
		"0.0.0.0 Ads.Example.com.",
		"0.0.0.0 *.wild.example",
		"0.0.0.0 .dot.example",
		"0.0.0.0",
		"   ",
		"0.0.0.0 bücher.example",
	}, "\n")

	rules, err := ParseHostsFile(strings.NewReader(input), "hosts", log.NewNoopLogger(), now)
	require.NoError(t, err)

	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.Name)
		assert.Equal(t, domain.BlockRuleExact, r.Kind)
		assert.Equal(t, "hosts", r.Source)
	}
	assert.Equal(t, []string{"ads.example.com", "tracker.example.com", "xn--bcher-kva.example"}, names)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Format
	}{
		{"hosts v4", "# c\n0.0.0.0 ads.example\n", FormatHosts},
		{"hosts v6", "\n::1 ads.example\n", FormatHosts},
		{"plain", "# c\nads.example\n0.0.0.0 x.example\n", FormatPlain},
		{"plain suffix", "*.ads.example\n", FormatPlain},
		{"empty", "", FormatPlain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat([]byte(tt.data)))
		})
	}
	assert.Equal(t, "hosts", FormatHosts.String())
	assert.Equal(t, "plain", FormatPlain.String())
}

func TestParseFile_DispatchesByFormat(t *testing.T) {
	logger := log.NewNoopLogger()
	now := time.Now()

	hostsRules, err := ParseFile(strings.NewReader("0.0.0.0 ads.example\n"), "h", logger, now)
	require.NoError(t, err)
	require.Len(t, hostsRules, 1)
	assert.Equal(t, "ads.example", hostsRules[0].Name)

	plainRules, err := ParseFile(strings.NewReader("*.ads.example\n"), "p", logger, now)
	require.NoError(t, err)
	require.Len(t, plainRules, 1)
	assert.Equal(t, domain.BlockRuleSuffix, plainRules[0].Kind)

	_, err = ParseFile(failingReader{}, "x", logger, now)
	assert.Error(t, err)
}
