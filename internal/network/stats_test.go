package network

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacketStats_Counters(t *testing.T) {
	s := NewPacketStats(0)
	now := time.Unix(100, 0)

	s.AddPacket(ControlChannel, 1, now)
	s.AddPacket(ControlChannel, 3, now)
	s.AddDropped(ControlChannel)
	s.AddError(TelemetryChannel)
	s.AddStatusSent()
	s.AddStatusFailed()

	snap := s.Snapshot()
	assert.Equal(t, ChannelSnapshot{Packets: 2, Bytes: 4, Dropped: 1}, snap.Control)
	assert.Equal(t, ChannelSnapshot{Errors: 1}, snap.Telemetry)
	assert.Equal(t, uint64(1), snap.StatusSent)
	assert.Equal(t, uint64(1), snap.StatusFailed)
	assert.Zero(t, snap.PoseIntervals)
}

func TestPacketStats_PoseJitter(t *testing.T) {
	s := NewPacketStats(0)
	start := time.Unix(0, 0)

	s.AddPacket(TelemetryChannel, 24, start)
	snap := s.Snapshot()
	assert.Zero(t, snap.PoseIntervals)

	s.AddPacket(TelemetryChannel, 24, start.Add(10*time.Millisecond))
	snap = s.Snapshot()
	assert.Equal(t, 1, snap.PoseIntervals)
	assert.InDelta(t, 0.010, snap.PoseIntervalMean, 1e-9)
	assert.Zero(t, snap.PoseIntervalStd)

	s.AddPacket(TelemetryChannel, 24, start.Add(30*time.Millisecond))
	snap = s.Snapshot()
	assert.Equal(t, 2, snap.PoseIntervals)
	assert.InDelta(t, 0.015, snap.PoseIntervalMean, 1e-9)
	assert.InDelta(t, math.Sqrt(0.00005), snap.PoseIntervalStd, 1e-9)
}

func TestPacketStats_JitterWindowWraps(t *testing.T) {
	s := NewPacketStats(4)
	at := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		s.AddPacket(TelemetryChannel, 24, at)
		at = at.Add(5 * time.Millisecond)
	}

	snap := s.Snapshot()
	assert.Equal(t, 4, snap.PoseIntervals)
	assert.InDelta(t, 0.005, snap.PoseIntervalMean, 1e-9)
	assert.InDelta(t, 0, snap.PoseIntervalStd, 1e-9)
	assert.Equal(t, uint64(10), snap.Telemetry.Packets)
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "control", ControlChannel.String())
	assert.Equal(t, "telemetry", TelemetryChannel.String())
	assert.Equal(t, "unknown", Channel(9).String())
}
