// Package upstream identifies the recursive resolver that queries are
// forwarded to. Datagrams are exchanged over the listening socket, so this
// package only resolves the configured address and recognizes replies from it.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// Error message constants for consistent error handling
const (
	errInvalidAddress = "invalid upstream address %q: %w"
	errInvalidPort    = "invalid upstream port %q"
	errLookupFailed   = "lookup %s: %w"
	errNoAddresses    = "lookup %s: no addresses"
)

// ErrDisabled is returned by Target.AddrPort when no upstream is configured.
var ErrDisabled = errors.New("upstream forwarding disabled")

// LookupFunc resolves a host name to IP addresses.
type LookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

// Options configures a Resolver.
type Options struct {
	Timeout time.Duration
	// injected for tests
	Lookup LookupFunc
}

// Resolver turns configured "host:port" strings into Targets.
type Resolver struct {
	timeout time.Duration
	lookup  LookupFunc
}

// NewResolver creates a Resolver. The timeout defaults to 5 seconds and the
// lookup function to the system resolver.
func NewResolver(opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Lookup == nil {
		opts.Lookup = net.DefaultResolver.LookupNetIP
	}
	return &Resolver{
		timeout: opts.Timeout,
		lookup:  opts.Lookup,
	}
}

// Resolve parses addr with the default resolver.
func Resolve(addr string) (Target, error) {
	return NewResolver(Options{}).Resolve(context.Background(), addr)
}

// Resolve parses addr into a Target. An IP literal is used as is; a host name
// is looked up once and its first address kept. An empty addr yields a
// disabled Target and no error.
func (r *Resolver) Resolve(ctx context.Context, addr string) (Target, error) {
	if addr == "" {
		return Target{}, nil
	}
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		if ap.Port() == 0 {
			return Target{}, fmt.Errorf(errInvalidPort, "0")
		}
		return newTarget(addr, ap), nil
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Target{}, fmt.Errorf(errInvalidAddress, addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Target{}, fmt.Errorf(errInvalidPort, portStr)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return newTarget(addr, netip.AddrPortFrom(ip, uint16(port))), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ips, err := r.lookup(ctx, "ip", host)
	if err != nil {
		return Target{}, fmt.Errorf(errLookupFailed, host, err)
	}
	if len(ips) == 0 {
		return Target{}, fmt.Errorf(errNoAddresses, host)
	}
	return newTarget(addr, netip.AddrPortFrom(ips[0], uint16(port))), nil
}

// Target is the resolved upstream. The zero value is disabled.
type Target struct {
	name string
	addr netip.AddrPort
}

func newTarget(name string, ap netip.AddrPort) Target {
	return Target{name: name, addr: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}
}

// Enabled reports whether forwarding has somewhere to go.
func (t Target) Enabled() bool {
	return t.addr.IsValid()
}

// AddrPort returns the address datagrams are sent to.
func (t Target) AddrPort() (netip.AddrPort, error) {
	if !t.Enabled() {
		return netip.AddrPort{}, ErrDisabled
	}
	return t.addr, nil
}

// Matches reports whether a datagram from the given source came from the
// upstream. IPv4-mapped IPv6 sources compare equal to their IPv4 form.
func (t Target) Matches(from netip.AddrPort) bool {
	if !t.Enabled() {
		return false
	}
	return netip.AddrPortFrom(from.Addr().Unmap(), from.Port()) == t.addr
}

func (t Target) String() string {
	if !t.Enabled() {
		return "disabled"
	}
	if t.name != "" && t.name != t.addr.String() {
		return fmt.Sprintf("%s (%s)", t.name, t.addr)
	}
	return t.addr.String()
}
