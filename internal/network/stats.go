package network

import (
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/simbridge/internal/monitoring"
)

// Channel identifies an inbound UDP channel.
type Channel int

const (
	ControlChannel Channel = iota
	TelemetryChannel
)

func (c Channel) String() string {
	switch c {
	case ControlChannel:
		return "control"
	case TelemetryChannel:
		return "telemetry"
	default:
		return "unknown"
	}
}

// defaultJitterWindow is the number of telemetry inter-arrival intervals kept
// for jitter statistics.
const defaultJitterWindow = 256

type channelCounters struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
	dropped  atomic.Uint64
	errors   atomic.Uint64
	replayed atomic.Uint64
}

func (c *channelCounters) snapshot() ChannelSnapshot {
	return ChannelSnapshot{
		Packets:  c.packets.Load(),
		Bytes:    c.bytes.Load(),
		Dropped:  c.dropped.Load(),
		Errors:   c.errors.Load(),
		Replayed: c.replayed.Load(),
	}
}

// PacketStats tracks per-channel receive counters, status send counters and
// telemetry arrival jitter. All methods are safe for concurrent use.
type PacketStats struct {
	control      channelCounters
	telemetry    channelCounters
	statusSent   atomic.Uint64
	statusFailed atomic.Uint64

	mu        sync.Mutex
	lastPose  time.Time
	intervals []float64
	next      int
	filled    bool
}

// NewPacketStats creates a stats collector keeping the given number of
// telemetry intervals. A non-positive window uses the default.
func NewPacketStats(window int) *PacketStats {
	if window <= 0 {
		window = defaultJitterWindow
	}
	return &PacketStats{intervals: make([]float64, window)}
}

func (s *PacketStats) counters(ch Channel) *channelCounters {
	if ch == TelemetryChannel {
		return &s.telemetry
	}
	return &s.control
}

// AddPacket records an accepted datagram of the given size.
func (s *PacketStats) AddPacket(ch Channel, bytes int, at time.Time) {
	c := s.counters(ch)
	c.packets.Add(1)
	c.bytes.Add(uint64(bytes))

	if ch != TelemetryChannel {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastPose.IsZero() {
		s.intervals[s.next] = at.Sub(s.lastPose).Seconds()
		s.next = (s.next + 1) % len(s.intervals)
		if s.next == 0 {
			s.filled = true
		}
	}
	s.lastPose = at
}

// AddReplayed records an accepted datagram that came from a capture rather
// than the socket. It counts as a packet but stays out of the jitter window.
func (s *PacketStats) AddReplayed(ch Channel, bytes int) {
	c := s.counters(ch)
	c.packets.Add(1)
	c.bytes.Add(uint64(bytes))
	c.replayed.Add(1)
}

// AddDropped records a datagram discarded for having the wrong length.
func (s *PacketStats) AddDropped(ch Channel) {
	s.counters(ch).dropped.Add(1)
}

// AddError records a failed receive.
func (s *PacketStats) AddError(ch Channel) {
	s.counters(ch).errors.Add(1)
}

// AddStatusSent records a successful status send.
func (s *PacketStats) AddStatusSent() {
	s.statusSent.Add(1)
}

// AddStatusFailed records a failed status send.
func (s *PacketStats) AddStatusFailed() {
	s.statusFailed.Add(1)
}

// ChannelSnapshot is a point-in-time copy of one channel's counters.
type ChannelSnapshot struct {
	Packets  uint64 `json:"packets"`
	Bytes    uint64 `json:"bytes"`
	Dropped  uint64 `json:"dropped"`
	Errors   uint64 `json:"errors"`
	Replayed uint64 `json:"replayed"`
}

// StatsSnapshot is a point-in-time copy of all counters.
type StatsSnapshot struct {
	Control          ChannelSnapshot `json:"control"`
	Telemetry        ChannelSnapshot `json:"telemetry"`
	StatusSent       uint64          `json:"status_sent"`
	StatusFailed     uint64          `json:"status_failed"`
	PoseIntervalMean float64         `json:"pose_interval_mean_seconds"`
	PoseIntervalStd  float64         `json:"pose_interval_stddev_seconds"`
	PoseIntervals    int             `json:"pose_intervals"`
}

// Snapshot returns the current counters and telemetry jitter.
func (s *PacketStats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Control:      s.control.snapshot(),
		Telemetry:    s.telemetry.snapshot(),
		StatusSent:   s.statusSent.Load(),
		StatusFailed: s.statusFailed.Load(),
	}

	s.mu.Lock()
	n := s.next
	if s.filled {
		n = len(s.intervals)
	}
	window := append([]float64(nil), s.intervals[:n]...)
	s.mu.Unlock()

	snap.PoseIntervals = len(window)
	switch {
	case len(window) == 1:
		snap.PoseIntervalMean = window[0]
	case len(window) > 1:
		snap.PoseIntervalMean, snap.PoseIntervalStd = stat.MeanStdDev(window, nil)
	}
	return snap
}

// LogStats writes a one-line summary to the diag stream.
func (s *PacketStats) LogStats() {
	snap := s.Snapshot()
	monitoring.Diagf("control: %d pkts (%d dropped, %d errors); telemetry: %d pkts (%d dropped, %d errors), interval %.2fms ± %.2fms; status: %d sent, %d failed",
		snap.Control.Packets, snap.Control.Dropped, snap.Control.Errors,
		snap.Telemetry.Packets, snap.Telemetry.Dropped, snap.Telemetry.Errors,
		snap.PoseIntervalMean*1000, snap.PoseIntervalStd*1000,
		snap.StatusSent, snap.StatusFailed)
}
