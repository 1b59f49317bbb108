// Package lifecycle publishes simulation lifecycle events to subscribers
// registered on the publishing component.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Event is a simulation lifecycle event.
type Event int

const (
	Started Event = iota + 1
	Stopped
	Initialized
)

func (e Event) String() string {
	switch e {
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Initialized:
		return "initialized"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type subscriber struct {
	id string
	fn func(Event)
}

// Publisher owns an ordered list of subscribers. Publishing is synchronous:
// subscribers run on the caller's goroutine in subscription order.
type Publisher struct {
	mu          sync.Mutex
	subscribers []subscriber
}

// NewPublisher returns a publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers fn and returns an ID for Unsubscribe.
func (p *Publisher) Subscribe(fn func(Event)) string {
	id := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, subscriber{id: id, fn: fn})
	return id
}

// Unsubscribe removes a subscriber. Unknown IDs are ignored.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subscribers {
		if s.id == id {
			p.subscribers = append(p.subscribers[:i:i], p.subscribers[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every current subscriber. The subscriber list is
// copied first, so a subscriber may unsubscribe itself while handling e.
func (p *Publisher) Publish(e Event) {
	p.mu.Lock()
	subs := append([]subscriber(nil), p.subscribers...)
	p.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Started publishes Started.
func (p *Publisher) Started() { p.Publish(Started) }

// Stopped publishes Stopped.
func (p *Publisher) Stopped() { p.Publish(Stopped) }

// Initialized publishes Initialized.
func (p *Publisher) Initialized() { p.Publish(Initialized) }
