package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/queue"
	"github.com/banshee-data/simbridge/internal/timeutil"
	"github.com/banshee-data/simbridge/internal/wire"
)

// DefaultPollInterval is the pause between poll iterations. It trades up to
// a millisecond of receive latency for a mostly idle CPU.
const DefaultPollInterval = time.Millisecond

// maxDatagramSize bounds the receive buffer. Anything longer is truncated
// and then rejected by the per-channel length checks.
const maxDatagramSize = 2048

// Sink receives decoded inbound messages from the poller goroutine.
type Sink interface {
	// HandleControl receives the first byte of every non-empty control
	// datagram, recognised or not.
	HandleControl(raw byte)
	// HandleTelemetry receives every well-formed pose.
	HandleTelemetry(pose wire.TelemetryPose)
}

// PollerConfig contains configuration options for the socket poller.
type PollerConfig struct {
	ControlAddr   string
	TelemetryAddr string
	PollInterval  time.Duration
	SocketFactory UDPSocketFactory
	Clock         timeutil.Clock
	Stats         *PacketStats
	Sink          Sink
}

// injection is a payload handed to the poller from outside its goroutine,
// such as a replayed capture.
type injection struct {
	ch      Channel
	payload []byte
}

// Poller owns the control and telemetry receive sockets and drains them
// from a dedicated goroutine. Every Sink call is made from that goroutine,
// including those for injected payloads.
type Poller struct {
	controlAddr   string
	telemetryAddr string
	interval      time.Duration
	factory       UDPSocketFactory
	clock         timeutil.Clock
	stats         *PacketStats
	sink          Sink
	injected      *queue.Queue[injection]

	mu        sync.Mutex
	control   UDPSocket
	telemetry UDPSocket
	stopping  atomic.Bool
	done      chan struct{}
}

// NewPoller creates a poller with the provided configuration. Sockets are
// not bound until Start.
func NewPoller(cfg PollerConfig) *Poller {
	p := &Poller{
		controlAddr:   cfg.ControlAddr,
		telemetryAddr: cfg.TelemetryAddr,
		interval:      cfg.PollInterval,
		factory:       cfg.SocketFactory,
		clock:         cfg.Clock,
		stats:         cfg.Stats,
		sink:          cfg.Sink,
		injected:      queue.New[injection](),
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.factory == nil {
		p.factory = NewRealUDPSocketFactory()
	}
	if p.clock == nil {
		p.clock = timeutil.RealClock{}
	}
	if p.stats == nil {
		p.stats = NewPacketStats(0)
	}
	return p
}

// Start binds both receive sockets and launches the polling goroutine. A
// bind failure is returned and leaves no socket open.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return errors.New("poller already started")
	}
	if p.stopping.Load() {
		return errors.New("poller stopped")
	}
	if p.sink == nil {
		return errors.New("poller has no sink")
	}

	control, err := p.bind(p.controlAddr)
	if err != nil {
		return fmt.Errorf("failed to bind control socket: %w", err)
	}
	telemetry, err := p.bind(p.telemetryAddr)
	if err != nil {
		control.Close()
		return fmt.Errorf("failed to bind telemetry socket: %w", err)
	}

	p.control = control
	p.telemetry = telemetry
	p.done = make(chan struct{})

	go p.run(p.done)

	monitoring.Opsf("poller started: control=%s telemetry=%s interval=%v",
		control.LocalAddr(), telemetry.LocalAddr(), p.interval)
	return nil
}

func (p *Poller) bind(address string) (UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %q: %w", address, err)
	}
	return p.factory.ListenUDP("udp", addr)
}

// Stop asks the polling goroutine to exit at the next iteration boundary,
// waits for it, then closes both sockets. It is safe to call more than once
// and before Start.
func (p *Poller) Stop() {
	p.stopping.Store(true)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return
	}
	<-p.done

	for _, sock := range []UDPSocket{p.control, p.telemetry} {
		if sock == nil {
			continue
		}
		if err := sock.Close(); err != nil {
			monitoring.Diagf("failed to close %s: %v", sock.LocalAddr(), err)
		}
	}
	p.control = nil
	p.telemetry = nil
	if n := len(p.injected.DrainAll()); n > 0 {
		monitoring.Diagf("discarded %d injected datagrams", n)
	}
	monitoring.Opsf("poller stopped")
}

// ControlAddr returns the bound control address, or nil before Start.
func (p *Poller) ControlAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.control == nil {
		return nil
	}
	return p.control.LocalAddr()
}

// TelemetryAddr returns the bound telemetry address, or nil before Start.
func (p *Poller) TelemetryAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.telemetry == nil {
		return nil
	}
	return p.telemetry.LocalAddr()
}

func (p *Poller) run(done chan struct{}) {
	defer close(done)

	// The sockets are only replaced after done is closed, so the loop can
	// hold on to them without the lock.
	control, telemetry := p.control, p.telemetry
	buf := make([]byte, maxDatagramSize)

	for !p.stopping.Load() {
		p.iterate(control, telemetry, buf)
		p.clock.Sleep(p.interval)
	}
}

// iterate performs one poll of each socket, then handles any injected
// payloads. Panics are contained to the iteration so that a single bad
// datagram cannot stop the poller.
func (p *Poller) iterate(control, telemetry UDPSocket, buf []byte) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Diagf("poller recovered from panic: %v", r)
		}
	}()

	p.pollOnce(control, ControlChannel, buf)
	p.pollOnce(telemetry, TelemetryChannel, buf)
	for _, in := range p.injected.DrainAll() {
		p.ingest(in.ch, in.payload, true)
	}
}

func (p *Poller) pollOnce(sock UDPSocket, ch Channel, buf []byte) {
	n, addr, err := sock.Poll(buf)
	if err != nil {
		if errors.Is(err, ErrNoDatagram) {
			return
		}
		p.stats.AddError(ch)
		monitoring.Diagf("%s receive error on %s: %v", ch, sock.LocalAddr(), err)
		return
	}
	monitoring.Tracef("%s datagram from %v: %d bytes", ch, addr, n)
	p.ingest(ch, buf[:n], false)
}

// IngestControl queues a control payload for the poller goroutine, which
// handles it as if it had arrived on the control socket. Payloads ingested
// after Stop are ignored.
func (p *Poller) IngestControl(payload []byte) {
	p.inject(ControlChannel, payload)
}

// IngestTelemetry queues a telemetry payload for the poller goroutine.
func (p *Poller) IngestTelemetry(payload []byte) {
	p.inject(TelemetryChannel, payload)
}

func (p *Poller) inject(ch Channel, payload []byte) {
	if p.stopping.Load() {
		monitoring.Tracef("ignoring %s payload injected after stop", ch)
		return
	}
	p.injected.Enqueue(injection{ch: ch, payload: append([]byte(nil), payload...)})
}

// ingest is the shared decode path. Control datagrams contribute their first
// byte, forwarded without being decoded; empty ones are dropped. Telemetry
// datagrams other than PoseSize bytes are dropped.
func (p *Poller) ingest(ch Channel, payload []byte, replayed bool) {
	switch ch {
	case ControlChannel:
		if len(payload) == 0 {
			p.stats.AddDropped(ch)
			monitoring.Tracef("dropped empty control datagram")
			return
		}
		p.count(ch, len(payload), replayed)
		p.sink.HandleControl(payload[0])
	case TelemetryChannel:
		pose, err := wire.DecodePose(payload)
		if err != nil {
			p.stats.AddDropped(ch)
			monitoring.Tracef("dropped telemetry datagram: %v", err)
			return
		}
		p.count(ch, len(payload), replayed)
		p.sink.HandleTelemetry(pose)
	}
}

func (p *Poller) count(ch Channel, n int, replayed bool) {
	if replayed {
		p.stats.AddReplayed(ch, n)
		return
	}
	p.stats.AddPacket(ch, n, p.clock.Now())
}
