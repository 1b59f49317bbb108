package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/wire"
)

func listenStatus(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readDatagram(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	buf := make([]byte, 64)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestStatusSender_SendsSingleByte(t *testing.T) {
	monitoring.Mute()
	dest := listenStatus(t)
	stats := NewPacketStats(0)

	s, err := NewStatusSender(dest.LocalAddr().String(), stats)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, dest.LocalAddr().String(), s.Address())

	require.NoError(t, s.Send(wire.SimulationInitialized))
	assert.Equal(t, []byte{0x04}, readDatagram(t, dest))

	require.NoError(t, s.Send(wire.SimulationStopped))
	assert.Equal(t, []byte{0x02}, readDatagram(t, dest))

	snap := stats.Snapshot()
	assert.Equal(t, uint64(2), snap.StatusSent)
	assert.Equal(t, uint64(0), snap.StatusFailed)
}

func TestStatusSender_SendAfterClose(t *testing.T) {
	monitoring.Mute()
	dest := listenStatus(t)
	stats := NewPacketStats(0)

	s, err := NewStatusSender(dest.LocalAddr().String(), stats)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Send(wire.SimulationStarted), ErrSenderClosed)
	assert.ErrorIs(t, s.Send(wire.SimulationStopped), ErrSenderClosed)
	assert.Equal(t, uint64(2), stats.Snapshot().StatusFailed)
	assert.Zero(t, stats.Snapshot().StatusSent)
}

func TestNewStatusSender_BadAddress(t *testing.T) {
	_, err := NewStatusSender("not-an-address", nil)
	assert.Error(t, err)
}
