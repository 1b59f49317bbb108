package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/wire"
)

func TestRecorder_FlushesOnClose(t *testing.T) {
	j := openTestJournal(t)
	beginTestSession(t, j, "s1")

	r := NewRecorder(j, "s1", RecorderConfig{RecordPoses: true})
	at := time.Unix(1700000000, 0)
	r.RecordControl(wire.StartEnvironment, at)
	r.RecordStatus(wire.SimulationStarted, at.Add(time.Millisecond))
	r.RecordPose(wire.TelemetryPose{Latitude: 1}, at.Add(2*time.Millisecond))
	r.Close()

	assert.Equal(t, uint64(3), r.Written())
	assert.Zero(t, r.Dropped())
	assert.Equal(t, "s1", r.SessionID())

	signals, err := j.RecentSignals(10)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, Outbound, signals[0].Direction)
	assert.Equal(t, "simulation_started", signals[0].Kind)
	assert.Equal(t, Inbound, signals[1].Direction)
	assert.Equal(t, byte(wire.StartEnvironment), signals[1].Value)

	poses, err := j.Poses("s1")
	require.NoError(t, err)
	assert.Len(t, poses, 1)
}

func TestRecorder_PosesDisabled(t *testing.T) {
	j := openTestJournal(t)
	beginTestSession(t, j, "s1")

	r := NewRecorder(j, "s1", RecorderConfig{})
	r.RecordPose(wire.TelemetryPose{Latitude: 1}, time.Now())
	r.Close()

	poses, err := j.Poses("s1")
	require.NoError(t, err)
	assert.Empty(t, poses)
	assert.Zero(t, r.Dropped())
}

func TestRecorder_DropsAfterClose(t *testing.T) {
	j := openTestJournal(t)
	beginTestSession(t, j, "s1")

	r := NewRecorder(j, "s1", RecorderConfig{Buffer: 4})
	r.Close()
	r.Close()

	r.RecordControl(wire.StopEnvironment, time.Now())
	assert.Equal(t, uint64(1), r.Dropped())
}

func TestRecorder_WriteErrorsAreLogged(t *testing.T) {
	monitoring.Mute()
	t.Cleanup(monitoring.Mute)
	j := openTestJournal(t)

	// No session row, so the foreign key rejects every write.
	r := NewRecorder(j, "ghost", RecorderConfig{})
	r.RecordControl(wire.StartEnvironment, time.Now())
	r.Close()

	assert.Zero(t, r.Written())
}
