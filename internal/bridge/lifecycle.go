package bridge

import (
	"sync"

	"github.com/banshee-data/simbridge/internal/lifecycle"
	"github.com/banshee-data/simbridge/internal/wire"
)

// StatusSink accepts outbound status signals. *Bridge implements it.
type StatusSink interface {
	SendStatus(wire.StatusSignal)
}

// StatusFor maps a lifecycle event to the status signal announcing it.
func StatusFor(e lifecycle.Event) (wire.StatusSignal, bool) {
	switch e {
	case lifecycle.Started:
		return wire.SimulationStarted, true
	case lifecycle.Stopped:
		return wire.SimulationStopped, true
	case lifecycle.Initialized:
		return wire.SimulationInitialized, true
	default:
		return 0, false
	}
}

// LifecycleSignals forwards simulation lifecycle events to the status
// channel so the simulation never encodes wire bytes itself.
type LifecycleSignals struct {
	publisher *lifecycle.Publisher
	sink      StatusSink

	mu sync.Mutex
	id string
}

// NewLifecycleSignals subscribes sink to pub.
func NewLifecycleSignals(pub *lifecycle.Publisher, sink StatusSink) *LifecycleSignals {
	ls := &LifecycleSignals{publisher: pub, sink: sink}
	ls.id = pub.Subscribe(ls.handle)
	return ls
}

func (ls *LifecycleSignals) handle(e lifecycle.Event) {
	if sig, ok := StatusFor(e); ok {
		ls.sink.SendStatus(sig)
	}
}

// Close unsubscribes. Safe to call more than once.
func (ls *LifecycleSignals) Close() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.id == "" {
		return
	}
	ls.publisher.Unsubscribe(ls.id)
	ls.id = ""
}
