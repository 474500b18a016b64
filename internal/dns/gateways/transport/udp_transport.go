package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/domain"
	"github.com/haukened/rr-fwd/internal/dns/gateways/wire"
	"github.com/haukened/rr-fwd/internal/dns/services/forwarder"
)

// UDPTransport implements ServerTransport for DNS over UDP (RFC 1035).
// One loop reads a datagram, hands it to the handler and sends whatever the
// handler returns before reading the next.
type UDPTransport struct {
	addr   string
	conn   *net.UDPConn
	codec  wire.DNSCodec
	logger log.Logger

	// Synchronization for graceful shutdown
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewUDPTransport creates a new UDP transport instance.
func NewUDPTransport(addr string, codec wire.DNSCodec, logger log.Logger) *UDPTransport {
	return &UDPTransport{
		addr:   addr,
		codec:  codec,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start binds the UDP socket and starts the receive loop.
func (t *UDPTransport) Start(ctx context.Context, handler MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   conn.LocalAddr().String(),
	}, "DNS transport started")

	// unblock a pending read once the context ends
	go func(conn *net.UDPConn, stopCh <-chan struct{}) {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-stopCh:
		}
	}(conn, t.stopCh)

	go t.listenLoop(ctx, conn, handler, t.done)

	return nil
}

// Stop closes the socket and waits for the receive loop to return.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}

	close(t.stopCh)

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "Error closing UDP connection")
		}
	}

	t.running = false
	done := t.done
	t.mu.Unlock()

	if done != nil {
		<-done
	}

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Address returns the bound address while running, else the configured one.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.running && t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// listenLoop reads datagrams until the socket is closed or ctx ends.
func (t *UDPTransport) listenLoop(ctx context.Context, conn *net.UDPConn, handler MessageHandler, done chan<- struct{}) {
	defer close(done)
	buffer := make([]byte, MaxUDPMessageSize)

	for {
		n, from, err := conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			if ctx.Err() != nil {
				t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
				return
			}
			if errors.Is(err, net.ErrClosed) {
				t.logger.Debug(nil, "UDP transport stopping due to stop signal")
				return
			}
			t.logger.Warn(map[string]any{
				"error": err.Error(),
			}, "Failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])
		t.handlePacket(ctx, conn, packet, from, handler)
	}
}

// handlePacket processes one datagram to completion.
func (t *UDPTransport) handlePacket(ctx context.Context, conn *net.UDPConn, data []byte, from netip.AddrPort, handler MessageHandler) {
	t.logger.Debug(map[string]any{
		"from": from.String(),
		"size": len(data),
		"raw":  fmt.Sprintf("%x", data),
	}, "Received raw DNS data")

	msg, err := t.codec.DecodeMessage(data)
	if err != nil {
		t.logger.Warn(map[string]any{
			"from":  from.String(),
			"error": err.Error(),
			"size":  len(data),
		}, "Failed to decode DNS message")
		return
	}

	out, err := handler.HandleMessage(ctx, msg, data, from)
	if err != nil {
		fields := map[string]any{
			"from":  from.String(),
			"id":    msg.Header.ID,
			"error": err.Error(),
		}
		if errors.Is(err, forwarder.ErrUnmatchedResponse) || errors.Is(err, forwarder.ErrUnexpectedSource) {
			t.logger.Debug(fields, "Dropped DNS message")
		} else {
			t.logger.Error(fields, "Failed to handle DNS message")
		}
		return
	}

	for _, o := range out {
		t.send(conn, o)
	}
}

// send writes one outbound datagram. Failures are logged and do not stop
// the remaining sends.
func (t *UDPTransport) send(conn *net.UDPConn, o forwarder.Outbound) {
	payload := o.Raw
	if payload == nil {
		var err error
		payload, err = t.codec.EncodeMessage(o.Msg)
		if err != nil {
			t.logger.Error(map[string]any{
				"to":    o.To.String(),
				"id":    o.Msg.Header.ID,
				"error": err.Error(),
			}, "Failed to encode DNS message")
			if !o.Msg.IsResponse() {
				return
			}
			if payload = t.encodeServFail(o.Msg); payload == nil {
				return
			}
		}
	}

	if _, err := conn.WriteToUDPAddrPort(payload, o.To); err != nil {
		t.logger.Error(map[string]any{
			"to":    o.To.String(),
			"id":    o.Msg.Header.ID,
			"error": err.Error(),
		}, "Failed to send DNS message")
		return
	}

	t.logger.Debug(map[string]any{
		"to":       o.To.String(),
		"id":       o.Msg.Header.ID,
		"size":     len(payload),
		"verbatim": o.Raw != nil,
	}, "Sent DNS message")
}

// encodeServFail encodes a SERVFAIL in place of a response that could not be
// encoded. Questions that cannot be encoded either are left out. Returns nil
// if nothing could be encoded.
func (t *UDPTransport) encodeServFail(resp domain.Message) []byte {
	reply := domain.NewReply(resp, domain.SERVFAIL)
	payload, err := t.codec.EncodeMessage(reply)
	if err != nil {
		reply.Questions = nil
		_ = reply.SyncCounts()
		if payload, err = t.codec.EncodeMessage(reply); err != nil {
			return nil
		}
	}
	t.logger.Warn(map[string]any{
		"id":        resp.Header.ID,
		"questions": len(reply.Questions),
	}, "Answering SERVFAIL for unencodable response")
	return payload
}
