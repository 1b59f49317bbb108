package journal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/wire"
)

// DefaultRecorderBuffer is the number of pending writes a Recorder holds
// before it starts dropping.
const DefaultRecorderBuffer = 1024

// RecorderConfig tunes a Recorder.
type RecorderConfig struct {
	Buffer      int
	RecordPoses bool
}

type record struct {
	signal *Signal
	pose   *wire.TelemetryPose
	at     time.Time
}

// Recorder writes journal rows from a background goroutine. The Record*
// methods never block; when the buffer is full the row is dropped and
// counted.
type Recorder struct {
	j           *Journal
	sessionID   string
	recordPoses bool

	mu      sync.RWMutex
	closed  bool
	pending chan record
	done    chan struct{}

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder starts a Recorder for one session.
func NewRecorder(j *Journal, sessionID string, cfg RecorderConfig) *Recorder {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	r := &Recorder{
		j:           j,
		sessionID:   sessionID,
		recordPoses: cfg.RecordPoses,
		pending:     make(chan record, buffer),
		done:        make(chan struct{}),
	}
	go r.run()
	return r
}

// SessionID returns the session rows are recorded under.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// RecordControl journals a dispatched control signal.
func (r *Recorder) RecordControl(s wire.ControlSignal, at time.Time) {
	r.enqueue(record{signal: &Signal{
		SessionID:  r.sessionID,
		Direction:  Inbound,
		Kind:       s.String(),
		Value:      byte(s),
		RecordedAt: at,
	}, at: at})
}

// RecordStatus journals a status signal that was sent.
func (r *Recorder) RecordStatus(s wire.StatusSignal, at time.Time) {
	r.enqueue(record{signal: &Signal{
		SessionID:  r.sessionID,
		Direction:  Outbound,
		Kind:       s.String(),
		Value:      byte(s),
		RecordedAt: at,
	}, at: at})
}

// RecordPose journals a dispatched pose when pose recording is enabled.
func (r *Recorder) RecordPose(p wire.TelemetryPose, at time.Time) {
	if !r.recordPoses {
		return
	}
	r.enqueue(record{pose: &p, at: at})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.pending <- rec:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.pending {
		var err error
		if rec.signal != nil {
			err = r.j.RecordSignal(*rec.signal)
		} else {
			err = r.j.RecordPose(r.sessionID, *rec.pose, rec.at)
		}
		if err != nil {
			monitoring.Diagf("journal: %v", err)
			continue
		}
		r.written.Add(1)
	}
}

// Close flushes pending rows and stops the writer. Safe to call twice.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.pending)
	r.mu.Unlock()
	<-r.done
}

// Dropped returns the number of rows discarded because the buffer was full
// or the recorder was closed.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns the number of rows successfully stored.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}
