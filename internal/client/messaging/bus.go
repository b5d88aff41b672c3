package messaging

import (
	"context"
	"sync"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/logging"
)

// Poster is the sending side of a Bus.
type Poster interface {
	Post(msg Message) bool
}

// Handler receives a delivered message.
type Handler func(ctx context.Context, msg Message)

type subscription struct {
	id      int
	kind    Kind // empty for every kind
	handler Handler
}

// Bus is an asynchronous, typed message bus.
type Bus struct {
	q   *queue
	log logging.Logger

	mu     sync.RWMutex
	subs   []subscription
	nextID int

	startOnce sync.Once
	done      chan struct{}
}

func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		q:    newQueue(),
		log:  logging.OrNop(logger).With("module", "messaging"),
		done: make(chan struct{}),
	}
}

// On registers h for messages of kind. The returned func unregisters it.
func (b *Bus) On(kind Kind, h Handler) func() {
	return b.add(kind, h)
}

// OnAny registers h for every message.
func (b *Bus) OnAny(h Handler) func() {
	return b.add("", h)
}

func (b *Bus) add(kind Kind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Subscribe returns a channel receiving every message of the given kinds
// (all kinds when none are given). Messages are dropped when the buffer is
// full. The returned func unsubscribes; the channel is not closed.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Message, func()) {
	ch := make(chan Message, buffer)
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	cancel := b.OnAny(func(ctx context.Context, msg Message) {
		if len(want) > 0 && !want[msg.Kind()] {
			return
		}
		select {
		case ch <- msg:
		default:
			b.log.Warn(ctx, "subscriber buffer full, dropping message", "type", msg.Kind())
		}
	})
	return ch, cancel
}

// Post enqueues msg for asynchronous delivery. It returns false after Close.
func (b *Bus) Post(msg Message) bool {
	return b.q.enqueue(msg)
}

// Start launches the delivery loop. Messages posted before Start are
// delivered once it runs. Calling Start more than once has no effect.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)

	for {
		for {
			msg, ok := b.q.tryDequeue()
			if !ok {
				break
			}
			b.dispatch(ctx, msg)
		}
		if b.q.isDrained() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-b.q.wait():
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, msg Message) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.kind != "" && s.kind != msg.Kind() {
			continue
		}
		b.deliver(ctx, s.handler, msg)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, msg Message) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error(ctx, "message handler panicked", "type", msg.Kind(), "panic", p)
		}
	}()
	h(ctx, msg)
}

// Close stops accepting messages and, if the loop was started, waits until
// everything already posted has been delivered or the loop's context ends.
func (b *Bus) Close() {
	b.q.close()

	started := true
	b.startOnce.Do(func() { started = false })
	if started {
		<-b.done
	}
}
