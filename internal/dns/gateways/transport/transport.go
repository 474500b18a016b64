// Package transport moves DNS datagrams between the network and the
// forwarding engine. It owns the socket and the wire codec so the engine only
// ever sees decoded messages.
package transport

import (
	"context"
	"net/netip"

	"github.com/haukened/rr-fwd/internal/dns/domain"
	"github.com/haukened/rr-fwd/internal/dns/services/forwarder"
)

// MaxUDPMessageSize is the receive buffer size. It covers EDNS payload sizes;
// classic 512-byte messages fit trivially.
const MaxUDPMessageSize = 4096

// ServerTransport defines the interface for DNS transport implementations.
type ServerTransport interface {
	// Start binds the socket and begins handing datagrams to handler.
	Start(ctx context.Context, handler MessageHandler) error

	// Stop closes the socket and waits for the receive loop to exit.
	Stop() error

	// Address returns the bound address once started, the configured one before.
	Address() string
}

// MessageHandler receives every decoded datagram together with its raw bytes
// and returns the datagrams to send. Clients and the upstream share one socket.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg domain.Message, raw []byte, from netip.AddrPort) ([]forwarder.Outbound, error)
}

// TransportType represents the different types of DNS transport protocols supported.
type TransportType string

const (
	// TransportUDP represents standard DNS over UDP (RFC 1035)
	TransportUDP TransportType = "udp"

	// TransportDoT represents DNS over TLS (RFC 7858) - future implementation
	TransportDoT TransportType = "dot"
)
