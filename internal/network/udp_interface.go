package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
)

// ErrNoDatagram is returned by UDPSocket.Poll when no datagram is waiting.
// It is the normal result of a poll on an idle socket, not a failure.
var ErrNoDatagram = errors.New("no datagram available")

// UDPSocket defines the receive-side socket operations the poller needs.
// This abstraction enables unit testing without real network connections.
type UDPSocket interface {
	// Poll copies the next queued datagram into b without waiting. It
	// returns ErrNoDatagram when the socket has nothing to deliver.
	Poll(b []byte) (n int, addr net.Addr, err error)

	// Close closes the socket.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// UDPSocketFactory defines an interface for creating UDP sockets.
type UDPSocketFactory interface {
	// ListenUDP binds and returns a new non-blocking UDP socket.
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocket wraps *net.UDPConn to implement UDPSocket. Polls bypass the
// runtime network poller and go straight to the socket so that an empty
// receive queue returns immediately.
type RealUDPSocket struct {
	conn *net.UDPConn
	raw  syscall.RawConn
}

// NewRealUDPSocket wraps an existing *net.UDPConn.
func NewRealUDPSocket(conn *net.UDPConn) (*RealUDPSocket, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to access raw socket: %w", err)
	}
	return &RealUDPSocket{conn: conn, raw: raw}, nil
}

// Close closes the UDP connection.
func (r *RealUDPSocket) Close() error {
	return r.conn.Close()
}

// LocalAddr returns the local network address.
func (r *RealUDPSocket) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
type RealUDPSocketFactory struct{}

// NewRealUDPSocketFactory creates a new RealUDPSocketFactory.
func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

// ListenUDP creates a new UDP socket.
func (f *RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	sock, err := NewRealUDPSocket(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sock, nil
}

// MockUDPSocket implements UDPSocket for testing. Datagrams pushed from a
// test goroutine are delivered to the poller goroutine in order.
type MockUDPSocket struct {
	mu           sync.Mutex
	packets      []MockUDPPacket
	errs         []error
	closed       bool
	polls        int
	LocalAddress *net.UDPAddr
}

// MockUDPPacket represents a packet for mock testing.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockUDPSocket creates a new MockUDPSocket bound to the given port.
func NewMockUDPSocket(port int) *MockUDPSocket {
	return &MockUDPSocket{
		LocalAddress: &net.UDPAddr{
			IP:   net.ParseIP("127.0.0.1"),
			Port: port,
		},
	}
}

// Push queues a datagram for delivery.
func (m *MockUDPSocket) Push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, MockUDPPacket{
		Data: append([]byte(nil), data...),
		Addr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 50000},
	})
}

// FailNext makes the next Poll return err instead of a datagram.
func (m *MockUDPSocket) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Poll returns the next queued datagram or ErrNoDatagram.
func (m *MockUDPSocket) Poll(b []byte) (int, net.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return 0, nil, err
	}
	if len(m.packets) == 0 {
		return 0, nil, ErrNoDatagram
	}
	pkt := m.packets[0]
	m.packets = m.packets[1:]
	n := copy(b, pkt.Data)
	return n, pkt.Addr, nil
}

// Pending returns the number of datagrams not yet polled.
func (m *MockUDPSocket) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

// Polls returns how many times Poll was called.
func (m *MockUDPSocket) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}

// MockUDPSocketFactory implements UDPSocketFactory for testing. Sockets and
// bind errors are looked up by port.
type MockUDPSocketFactory struct {
	mu          sync.Mutex
	Sockets     map[int]*MockUDPSocket
	Errors      map[int]error
	ListenCalls []MockListenCall
}

// MockListenCall records a call to ListenUDP.
type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

// NewMockUDPSocketFactory creates a factory that serves the given sockets,
// keyed by their local port.
func NewMockUDPSocketFactory(sockets ...*MockUDPSocket) *MockUDPSocketFactory {
	f := &MockUDPSocketFactory{
		Sockets: make(map[int]*MockUDPSocket),
		Errors:  make(map[int]error),
	}
	for _, s := range sockets {
		f.Sockets[s.LocalAddress.Port] = s
	}
	return f
}

// ListenUDP returns the mock socket registered for laddr's port.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListenCalls = append(f.ListenCalls, MockListenCall{
		Network: network,
		Addr:    laddr,
	})
	if err := f.Errors[laddr.Port]; err != nil {
		return nil, err
	}
	sock, ok := f.Sockets[laddr.Port]
	if !ok {
		return nil, fmt.Errorf("listen udp %s: address already in use", laddr)
	}
	return sock, nil
}
