package inproc

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"railhaul/internal/domain"
)

var (
	ErrNoSubscribers = errors.New("bus has no subscribers")
	ErrQueueFull     = errors.New("subscriber queue is full")
)

// Bus fans tick events out to named subscribers without blocking the
// publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.TickEvent
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan domain.TickEvent),
		buffer: buffer,
	}
}

func (b *Bus) Subscribe(name string) <-chan domain.TickEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[name]; ok {
		return ch
	}
	ch := make(chan domain.TickEvent, b.buffer)
	b.subs[name] = ch
	return ch
}

func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[name]
	if !ok {
		return
	}
	delete(b.subs, name)
	close(ch)
}

// Publish offers ev to every subscriber. Subscribers whose queue is full
// miss the event and are named in the returned error.
func (b *Bus) Publish(ev domain.TickEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.subs) == 0 {
		return ErrNoSubscribers
	}

	var full []string
	for name, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			full = append(full, name)
		}
	}
	if len(full) > 0 {
		sort.Strings(full)
		return fmt.Errorf("%w: %v", ErrQueueFull, full)
	}
	return nil
}
