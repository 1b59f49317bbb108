//go:build !unix

package network

import (
	"errors"
	"net"
	"os"
	"time"
)

// pollWait bounds how long a poll may wait on platforms without
// MSG_DONTWAIT support.
const pollWait = 50 * time.Microsecond

// Poll reads one datagram using a very short read deadline.
func (r *RealUDPSocket) Poll(b []byte) (int, net.Addr, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(pollWait)); err != nil {
		return 0, nil, err
	}
	n, addr, err := r.conn.ReadFromUDP(b)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, ErrNoDatagram
		}
		return 0, nil, err
	}
	return n, addr, nil
}
