package events

import (
	"sync"

	"github.com/renaultluk/sweat-coin/core/types"
)

// Emitter broadcasts events to downstream subscribers (RPC, indexers, the
// journal). Engines emit after a state transition has fully applied.
type Emitter interface {
	Emit(evt *types.Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(*types.Event) {}

// Bus is an in-process fan-out emitter. Subscribers receive every event
// emitted after they subscribe; a slow subscriber whose buffer is full has
// the event dropped rather than blocking the emitting engine.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan *types.Event
	sink Emitter
}

// NewBus returns a Bus. The optional sink receives every event synchronously
// before fan-out and is the hook for the durable journal.
func NewBus(sink Emitter) *Bus {
	return &Bus{subs: make(map[int]chan *types.Event), sink: sink}
}

func (b *Bus) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	if b.sink != nil {
		b.sink.Emit(evt)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a buffered subscription and returns the receive channel
// together with a cancel function. Cancel closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan *types.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *types.Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}
