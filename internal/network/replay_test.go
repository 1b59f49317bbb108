package network

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/testutil"
	"github.com/banshee-data/simbridge/internal/wire"
)

type recordingIngester struct {
	control   [][]byte
	telemetry [][]byte
}

func (r *recordingIngester) IngestControl(p []byte) {
	r.control = append(r.control, append([]byte(nil), p...))
}

func (r *recordingIngester) IngestTelemetry(p []byte) {
	r.telemetry = append(r.telemetry, append([]byte(nil), p...))
}

func TestReplayPCAP_RoutesByDestinationPort(t *testing.T) {
	monitoring.Mute()
	pose := wire.EncodePose(wire.TelemetryPose{Latitude: 1, Longitude: 2, Altitude: 3})
	path := testutil.WriteUDPCapture(t, []testutil.Datagram{
		{DstPort: 10003, Payload: []byte{0x01}},
		{DstPort: 10004, Payload: pose},
		{DstPort: 9999, Payload: []byte{0x01}},
		{DstPort: 10003, Payload: []byte{0x02}},
	})

	sink := &recordingIngester{}
	summary, err := ReplayPCAP(context.Background(), path, 10003, 10004, sink)
	require.NoError(t, err)

	assert.Equal(t, ReplaySummary{Packets: 4, Control: 2, Telemetry: 1, Skipped: 1}, summary)
	assert.Equal(t, [][]byte{{0x01}, {0x02}}, sink.control)
	assert.Equal(t, [][]byte{pose}, sink.telemetry)
}

func TestReplayPCAP_FeedsPoller(t *testing.T) {
	p, _, _, sink, stats := newMockPoller(t)
	require.NoError(t, p.Start())
	defer p.Stop()

	path := testutil.WriteUDPCapture(t, []testutil.Datagram{
		{DstPort: 10004, Payload: make([]byte, 10)},
		{DstPort: 10004, Payload: wire.EncodePose(wire.TelemetryPose{Roll: 0.5})},
		{DstPort: 10004, Payload: wire.EncodePose(wire.TelemetryPose{Roll: 0.75})},
		{DstPort: 10003, Payload: []byte{0x09}},
	})
	_, err := ReplayPCAP(context.Background(), path, 10003, 10004, p)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		controls, poses := sink.snapshot()
		return len(controls) == 1 && len(poses) == 2
	}, time.Second, time.Millisecond)

	controls, poses := sink.snapshot()
	assert.Equal(t, []byte{0x09}, controls)
	assert.Equal(t, []wire.TelemetryPose{{Roll: 0.5}, {Roll: 0.75}}, poses)

	snap := stats.Snapshot()
	assert.Equal(t, ChannelSnapshot{Packets: 2, Bytes: 48, Dropped: 1, Replayed: 2}, snap.Telemetry)
	assert.Equal(t, uint64(1), snap.Control.Replayed)
	// Replayed poses arrive back to back and say nothing about link jitter.
	assert.Zero(t, snap.PoseIntervals)
}

func TestReplayPCAP_Errors(t *testing.T) {
	_, err := ReplayPCAP(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), 1, 2, &recordingIngester{})
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("not a capture"), 0o644))
	_, err = ReplayPCAP(context.Background(), garbage, 1, 2, &recordingIngester{})
	assert.Error(t, err)
}

func TestReplayPCAP_Cancelled(t *testing.T) {
	monitoring.Mute()
	path := testutil.WriteUDPCapture(t, []testutil.Datagram{{DstPort: 10003, Payload: []byte{0x01}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingIngester{}
	_, err := ReplayPCAP(ctx, path, 10003, 10004, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.control)
}
