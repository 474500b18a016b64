package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-fwd/internal/dns/config"
)

// fakeUpstream is a recursive resolver answering from a fixed table. Names
// not in the table get NXDOMAIN with an SOA in the authority section.
type fakeUpstream struct {
	server  *dns.Server
	addr    string
	answers map[string]string

	mu   sync.Mutex
	seen []dns.Question
}

func startFakeUpstream(t *testing.T, answers map[string]string) *fakeUpstream {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	up := &fakeUpstream{addr: pc.LocalAddr().String(), answers: answers}
	started := make(chan struct{})
	up.server = &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(up.serve),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = up.server.ActivateAndServe() }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("fake upstream did not start")
	}
	t.Cleanup(func() { _ = up.server.Shutdown() })
	return up
}

func (u *fakeUpstream) serve(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = true

	q := r.Question[0]
	u.mu.Lock()
	u.seen = append(u.seen, q)
	u.mu.Unlock()

	if ip, ok := u.answers[q.Name]; ok && q.Qtype == dns.TypeA {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
			A:   net.ParseIP(ip),
		})
	} else if !ok {
		m.Rcode = dns.RcodeNameError
		m.Ns = append(m.Ns, &dns.SOA{
			Hdr:     dns.RR_Header{Name: "example.", Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 60},
			Ns:      "ns.example.",
			Mbox:    "hostmaster.example.",
			Serial:  1,
			Refresh: 3600,
			Retry:   600,
			Expire:  86400,
			Minttl:  60,
		})
	}
	_ = w.WriteMsg(m)
}

func (u *fakeUpstream) questions() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	names := make([]string, 0, len(u.seen))
	for _, q := range u.seen {
		names = append(names, q.Name)
	}
	return names
}

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())
	return addr
}

// startForwarder loads the config from the environment and runs the
// application until the test ends.
func startForwarder(t *testing.T, env map[string]string) string {
	t.Helper()
	t.Setenv("DNS_LISTEN", freeUDPAddr(t))
	t.Setenv("DNS_LOG_LEVEL", "error")
	t.Setenv("DNS_BLOCKLIST_DB", filepath.Join(t.TempDir(), "blocklist.db"))
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.Start(ctx))
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, app.Shutdown())
	})
	return app.transport.Address()
}

// exchange sends m over a raw socket so multi-question messages reach the
// forwarder untouched.
func exchange(t *testing.T, server string, m *dns.Msg) *dns.Msg {
	t.Helper()
	wire, err := m.Pack()
	require.NoError(t, err)

	conn, err := net.Dial("udp", server)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(wire)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err, "no reply from forwarder")

	reply := new(dns.Msg)
	require.NoError(t, reply.Unpack(buf[:n]))
	return reply
}

func newQuery(id uint16, names ...string) *dns.Msg {
	m := new(dns.Msg)
	m.Id = id
	m.RecursionDesired = true
	for _, name := range names {
		m.Question = append(m.Question, dns.Question{Name: dns.Fqdn(name), Qtype: dns.TypeA, Qclass: dns.ClassINET})
	}
	return m
}

func answerNames(rrs []dns.RR) []string {
	names := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		names = append(names, rr.Header().Name)
	}
	return names
}

func TestE2E_SingleQuestionRelayed(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}
	up := startFakeUpstream(t, map[string]string{"www.example.": "192.0.2.10"})
	server := startForwarder(t, map[string]string{"DNS_UPSTREAM": up.addr})

	reply := exchange(t, server, newQuery(0x1234, "www.example"))

	assert.Equal(t, uint16(0x1234), reply.Id)
	assert.True(t, reply.Response)
	assert.True(t, reply.RecursionAvailable)
	assert.Equal(t, dns.RcodeSuccess, reply.Rcode)
	require.Len(t, reply.Answer, 1)
	a, ok := reply.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "192.0.2.10", a.A.String())
	assert.Equal(t, []string{"www.example."}, up.questions())
}

func TestE2E_MultiQuestionMerged(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}
	up := startFakeUpstream(t, map[string]string{
		"a.example.": "192.0.2.1",
		"c.example.": "192.0.2.3",
	})
	server := startForwarder(t, map[string]string{"DNS_UPSTREAM": up.addr})

	reply := exchange(t, server, newQuery(0xbeef, "a.example", "missing.example", "c.example"))

	assert.Equal(t, uint16(0xbeef), reply.Id)
	assert.True(t, reply.Response)
	assert.True(t, reply.RecursionDesired)
	assert.Equal(t, dns.RcodeNameError, reply.Rcode, "first failing rcode in question order")

	require.Len(t, reply.Question, 3)
	assert.Equal(t, "a.example.", reply.Question[0].Name)
	assert.Equal(t, "missing.example.", reply.Question[1].Name)
	assert.Equal(t, "c.example.", reply.Question[2].Name)

	assert.Equal(t, []string{"a.example.", "c.example."}, answerNames(reply.Answer))
	require.Len(t, reply.Ns, 1)
	assert.Equal(t, dns.TypeSOA, reply.Ns[0].Header().Rrtype)
	assert.Empty(t, reply.Extra)

	assert.ElementsMatch(t, []string{"a.example.", "missing.example.", "c.example."}, up.questions())
}

func TestE2E_BlockedQuestions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}
	list := filepath.Join(t.TempDir(), "blocklist.txt")
	require.NoError(t, os.WriteFile(list, []byte("# ads\nads.example\n"), 0o600))

	up := startFakeUpstream(t, map[string]string{"a.example.": "192.0.2.1"})
	server := startForwarder(t, map[string]string{
		"DNS_UPSTREAM":        up.addr,
		"DNS_BLOCKLIST_FILES": list,
	})

	t.Run("only blocked", func(t *testing.T) {
		reply := exchange(t, server, newQuery(1, "ads.example"))
		assert.Equal(t, dns.RcodeRefused, reply.Rcode)
		assert.Empty(t, reply.Answer)
	})

	t.Run("mixed", func(t *testing.T) {
		reply := exchange(t, server, newQuery(2, "a.example", "ads.example"))
		assert.Equal(t, dns.RcodeRefused, reply.Rcode)
		require.Len(t, reply.Question, 2)
		assert.Equal(t, []string{"a.example."}, answerNames(reply.Answer))
	})

	assert.Equal(t, []string{"a.example."}, up.questions(), "blocked names never reach the upstream")
}

func TestE2E_NoUpstreamRefuses(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}
	server := startForwarder(t, nil)

	reply := exchange(t, server, newQuery(7, "a.example", "b.example"))
	assert.Equal(t, uint16(7), reply.Id)
	assert.True(t, reply.Response)
	assert.Equal(t, dns.RcodeRefused, reply.Rcode)
	assert.Len(t, reply.Question, 2)
	assert.Empty(t, reply.Answer)
}
