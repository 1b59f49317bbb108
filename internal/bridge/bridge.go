// Package bridge connects an external environment process to the
// simulation. Inbound control bytes and telemetry poses arrive on a
// background poller and are handed to the simulation's tick through two
// queues; lifecycle status signals go the other way as single-byte
// datagrams.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/network"
	"github.com/banshee-data/simbridge/internal/queue"
	"github.com/banshee-data/simbridge/internal/timeutil"
	"github.com/banshee-data/simbridge/internal/wire"
)

// Default endpoints used when the corresponding Config field is empty.
const (
	DefaultControlAddr   = "127.0.0.1:10003"
	DefaultTelemetryAddr = "127.0.0.1:10004"
	DefaultStatusAddr    = "127.0.0.1:10006"
)

var (
	// ErrNotStarted is returned by operations that need a running bridge.
	ErrNotStarted = errors.New("bridge not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("bridge already started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("bridge stopped")
)

// Config holds the bridge endpoints.
type Config struct {
	ControlAddr   string
	TelemetryAddr string
	StatusAddr    string
	PollInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ControlAddr == "" {
		c.ControlAddr = DefaultControlAddr
	}
	if c.TelemetryAddr == "" {
		c.TelemetryAddr = DefaultTelemetryAddr
	}
	if c.StatusAddr == "" {
		c.StatusAddr = DefaultStatusAddr
	}
	if c.PollInterval <= 0 {
		c.PollInterval = network.DefaultPollInterval
	}
	return c
}

// Handlers are the simulation callbacks invoked from Dispatch. Nil
// handlers are skipped.
type Handlers struct {
	OnStartEnvironment func()
	OnStopEnvironment  func()
	OnPoseUpdated      func(wire.TelemetryPose)
}

// Recorder receives a copy of every signal the bridge dispatches or sends.
// Implementations must not block.
type Recorder interface {
	RecordControl(s wire.ControlSignal, at time.Time)
	RecordStatus(s wire.StatusSignal, at time.Time)
	RecordPose(p wire.TelemetryPose, at time.Time)
}

// Entry is a queued inbound message stamped with its arrival order and
// time.
type Entry[T any] struct {
	Seq   uint64
	At    time.Time
	Value T
}

type state int32

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Bridge owns the poller, the status sender and the two handoff queues.
type Bridge struct {
	cfg       Config
	handlers  Handlers
	factory   network.UDPSocketFactory
	clock     timeutil.Clock
	stats     *network.PacketStats
	recorder  Recorder
	sessionID string

	controls *queue.Queue[Entry[byte]]
	poses    *queue.Queue[Entry[wire.TelemetryPose]]
	seq      atomic.Uint64

	state atomic.Int32

	mu        sync.Mutex
	poller    *network.Poller
	sender    *network.StatusSender
	startedAt time.Time

	dispatchedControl atomic.Uint64
	dispatchedPoses   atomic.Uint64
	skippedControl    atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSocketFactory replaces the UDP socket factory used for the receive
// sockets.
func WithSocketFactory(f network.UDPSocketFactory) Option {
	return func(b *Bridge) { b.factory = f }
}

// WithClock replaces the clock used for polling and timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithRecorder journals dispatched and sent signals.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) { b.recorder = r }
}

// WithStats shares a PacketStats instance with the bridge.
func WithStats(s *network.PacketStats) Option {
	return func(b *Bridge) { b.stats = s }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(b *Bridge) { b.sessionID = id }
}

// New creates a bridge. Nothing is bound until Start.
func New(cfg Config, handlers Handlers, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:      cfg.withDefaults(),
		handlers: handlers,
		clock:    timeutil.RealClock{},
		controls: queue.New[Entry[byte]](),
		poses:    queue.New[Entry[wire.TelemetryPose]](),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.factory == nil {
		b.factory = network.NewRealUDPSocketFactory()
	}
	if b.stats == nil {
		b.stats = network.NewPacketStats(0)
	}
	if b.sessionID == "" {
		b.sessionID = uuid.NewString()
	}
	return b
}

// SessionID identifies this bridge run.
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Start opens the status sender and binds both receive sockets. On error
// nothing is left open and the bridge stays idle.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch state(b.state.Load()) {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	sender, err := network.NewStatusSender(b.cfg.StatusAddr, b.stats)
	if err != nil {
		return err
	}

	poller := network.NewPoller(network.PollerConfig{
		ControlAddr:   b.cfg.ControlAddr,
		TelemetryAddr: b.cfg.TelemetryAddr,
		PollInterval:  b.cfg.PollInterval,
		SocketFactory: b.factory,
		Clock:         b.clock,
		Stats:         b.stats,
		Sink:          inbox{b},
	})
	if err := poller.Start(); err != nil {
		sender.Close()
		return err
	}

	b.poller = poller
	b.sender = sender
	b.startedAt = b.clock.Now()
	b.state.Store(int32(stateRunning))

	monitoring.Opsf("bridge %s running: status -> %s", b.sessionID, sender.Address())
	return nil
}

// Running reports whether the bridge is between Start and Stop.
func (b *Bridge) Running() bool {
	return state(b.state.Load()) == stateRunning
}

// StartedAt returns when Start last succeeded.
func (b *Bridge) StartedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startedAt
}

// ControlAddr returns the bound control address, or nil when not running.
func (b *Bridge) ControlAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poller == nil {
		return nil
	}
	return b.poller.ControlAddr()
}

// TelemetryAddr returns the bound telemetry address, or nil when not
// running.
func (b *Bridge) TelemetryAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poller == nil {
		return nil
	}
	return b.poller.TelemetryAddr()
}

// Dispatch drains both queues and invokes the handlers on the calling
// goroutine: every recognised control signal first, in arrival order, then
// every pose in arrival order. It does nothing once the bridge is stopped.
func (b *Bridge) Dispatch() {
	if !b.Running() {
		return
	}

	for _, e := range b.controls.DrainAll() {
		if !b.Running() {
			return
		}
		b.dispatchControl(e)
	}

	for _, e := range b.poses.DrainAll() {
		if !b.Running() {
			return
		}
		b.dispatchedPoses.Add(1)
		if b.recorder != nil {
			b.recorder.RecordPose(e.Value, e.At)
		}
		if b.handlers.OnPoseUpdated != nil {
			b.handlers.OnPoseUpdated(e.Value)
		}
	}
}

func (b *Bridge) dispatchControl(e Entry[byte]) {
	sig, ok := wire.DecodeControlByte(e.Value)
	if !ok {
		b.skippedControl.Add(1)
		monitoring.Tracef("ignoring unknown control byte 0x%02x (seq %d)", e.Value, e.Seq)
		return
	}

	b.dispatchedControl.Add(1)
	if b.recorder != nil {
		b.recorder.RecordControl(sig, e.At)
	}

	switch sig {
	case wire.StartEnvironment:
		if b.handlers.OnStartEnvironment != nil {
			b.handlers.OnStartEnvironment()
		}
	case wire.StopEnvironment:
		if b.handlers.OnStopEnvironment != nil {
			b.handlers.OnStopEnvironment()
		}
	}
}

// SendStatus sends sig to the status endpoint. It may be called from any
// goroutine. Failures are logged and counted, never returned.
func (b *Bridge) SendStatus(sig wire.StatusSignal) {
	if err := b.TrySendStatus(sig); err != nil {
		monitoring.Diagf("failed to send status %s: %v", sig, err)
	}
}

// TrySendStatus is SendStatus for callers that need the outcome. It returns
// ErrNotStarted when the bridge has no sender, or the transport error. A
// failed send is counted but not recorded in the journal.
func (b *Bridge) TrySendStatus(sig wire.StatusSignal) error {
	b.mu.Lock()
	sender := b.sender
	b.mu.Unlock()

	if sender == nil {
		b.stats.AddStatusFailed()
		return ErrNotStarted
	}
	if err := sender.Send(sig); err != nil {
		return err
	}
	if b.recorder != nil {
		b.recorder.RecordStatus(sig, b.clock.Now())
	}
	return nil
}

// Stop halts the poller, waits for it, closes every socket and marks the
// bridge stopped. Later calls return nil. Dispatch is a no-op afterwards.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := state(b.state.Swap(int32(stateStopped)))
	if prev != stateRunning {
		return nil
	}

	b.poller.Stop()
	var err error
	if cerr := b.sender.Close(); cerr != nil {
		err = fmt.Errorf("failed to close status sender: %w", cerr)
	}

	monitoring.Opsf("bridge %s stopped: %d control and %d pose entries discarded",
		b.sessionID, b.controls.Len(), b.poses.Len())
	b.controls.DrainAll()
	b.poses.DrainAll()
	return err
}

// Replay feeds a packet capture through the receive path as if the
// datagrams had arrived on the bridge's ports.
func (b *Bridge) Replay(ctx context.Context, path string) (network.ReplaySummary, error) {
	b.mu.Lock()
	poller := b.poller
	b.mu.Unlock()
	if poller == nil || !b.Running() {
		return network.ReplaySummary{}, ErrNotStarted
	}

	controlPort, err := port(poller.ControlAddr(), b.cfg.ControlAddr)
	if err != nil {
		return network.ReplaySummary{}, err
	}
	telemetryPort, err := port(poller.TelemetryAddr(), b.cfg.TelemetryAddr)
	if err != nil {
		return network.ReplaySummary{}, err
	}
	return network.ReplayPCAP(ctx, path, controlPort, telemetryPort, poller)
}

// port prefers the bound address, which differs from the configured one
// when an ephemeral port was requested.
func port(bound net.Addr, address string) (int, error) {
	if udp, ok := bound.(*net.UDPAddr); ok && udp.Port != 0 {
		return udp.Port, nil
	}
	_, p, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", address, err)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("invalid port in %q: %w", address, err)
	}
	return n, nil
}

// Stats is a point-in-time view of the bridge.
type Stats struct {
	SessionID         string                `json:"session_id"`
	State             string                `json:"state"`
	StartedAt         time.Time             `json:"started_at"`
	ControlAddr       string                `json:"control_addr"`
	TelemetryAddr     string                `json:"telemetry_addr"`
	StatusAddr        string                `json:"status_addr"`
	PendingControl    int                   `json:"pending_control"`
	PendingTelemetry  int                   `json:"pending_telemetry"`
	DispatchedControl uint64                `json:"dispatched_control"`
	DispatchedPoses   uint64                `json:"dispatched_poses"`
	SkippedControl    uint64                `json:"skipped_control"`
	Network           network.StatsSnapshot `json:"network"`
}

// Stats returns the current counters and queue depths.
func (b *Bridge) Stats() Stats {
	s := Stats{
		SessionID:         b.sessionID,
		State:             state(b.state.Load()).String(),
		ControlAddr:       b.cfg.ControlAddr,
		TelemetryAddr:     b.cfg.TelemetryAddr,
		StatusAddr:        b.cfg.StatusAddr,
		PendingControl:    b.controls.Len(),
		PendingTelemetry:  b.poses.Len(),
		DispatchedControl: b.dispatchedControl.Load(),
		DispatchedPoses:   b.dispatchedPoses.Load(),
		SkippedControl:    b.skippedControl.Load(),
		Network:           b.stats.Snapshot(),
	}
	if addr := b.ControlAddr(); addr != nil {
		s.ControlAddr = addr.String()
	}
	if addr := b.TelemetryAddr(); addr != nil {
		s.TelemetryAddr = addr.String()
	}
	s.StartedAt = b.StartedAt()
	return s
}

// LogStats writes the network counters to the diag stream.
func (b *Bridge) LogStats() {
	b.stats.LogStats()
}

// inbox is the poller's view of the bridge: it stamps inbound messages and
// appends them to the handoff queues. It only runs on the poller goroutine,
// replayed payloads included, so Seq follows queue order.
type inbox struct {
	b *Bridge
}

func (in inbox) HandleControl(raw byte) {
	in.b.controls.Enqueue(Entry[byte]{
		Seq:   in.b.seq.Add(1),
		At:    in.b.clock.Now(),
		Value: raw,
	})
}

func (in inbox) HandleTelemetry(pose wire.TelemetryPose) {
	in.b.poses.Enqueue(Entry[wire.TelemetryPose]{
		Seq:   in.b.seq.Add(1),
		At:    in.b.clock.Now(),
		Value: pose,
	})
}
