package network

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/banshee-data/simbridge/internal/wire"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("status sender closed")

// StatusSender writes single-byte status signals to a fixed destination. It
// may be used from any goroutine.
type StatusSender struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	address string
	stats   *PacketStats
	closed  bool
}

// NewStatusSender creates a sender for the given host:port destination.
func NewStatusSender(address string, stats *PacketStats) (*StatusSender, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve status address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create status connection: %w", err)
	}

	if stats == nil {
		stats = NewPacketStats(0)
	}
	return &StatusSender{
		conn:    conn,
		address: addr.String(),
		stats:   stats,
	}, nil
}

// Address returns the destination address.
func (s *StatusSender) Address() string {
	return s.address
}

// Send writes sig as one datagram and returns any transport error.
func (s *StatusSender) Send(sig wire.StatusSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.stats.AddStatusFailed()
		return ErrSenderClosed
	}
	b := wire.EncodeStatus(sig)
	if _, err := s.conn.Write(b[:]); err != nil {
		s.stats.AddStatusFailed()
		return fmt.Errorf("failed to send %v to %s: %w", sig, s.address, err)
	}
	s.stats.AddStatusSent()
	return nil
}

// Close releases the connection. Later calls return nil and later sends fail
// with ErrSenderClosed.
func (s *StatusSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
