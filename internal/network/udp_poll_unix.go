//go:build unix

package network

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Poll performs a single MSG_DONTWAIT receive on the socket.
func (r *RealUDPSocket) Poll(b []byte) (int, net.Addr, error) {
	var (
		n       int
		from    unix.Sockaddr
		recvErr error
	)
	err := r.raw.Read(func(fd uintptr) bool {
		n, from, recvErr = unix.Recvfrom(int(fd), b, unix.MSG_DONTWAIT)
		// Never park in the runtime poller; an empty queue is reported
		// to the caller instead.
		return true
	})
	if err != nil {
		return 0, nil, err
	}
	if recvErr != nil {
		if errors.Is(recvErr, unix.EAGAIN) || errors.Is(recvErr, unix.EWOULDBLOCK) || errors.Is(recvErr, unix.EINTR) {
			return 0, nil, ErrNoDatagram
		}
		return 0, nil, os.NewSyscallError("recvfrom", recvErr)
	}
	return n, sockaddrToUDP(from), nil
}

func sockaddrToUDP(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	default:
		return nil
	}
}
