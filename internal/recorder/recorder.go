// Package recorder persists tick events published on the bus.
package recorder

import (
	"context"
	"log"
	"sync"
	"time"

	"railhaul/internal/domain"
)

type Queue interface {
	Subscribe(name string) <-chan domain.TickEvent
	Unsubscribe(name string)
}

type Store interface {
	RecordTick(ctx context.Context, ev domain.TickEvent) error
}

type Recorder struct {
	id     string
	queue  Queue
	store  Store
	logger *log.Logger
	wg     sync.WaitGroup
}

func New(queue Queue, store Store, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		id:     "recorder",
		queue:  queue,
		store:  store,
		logger: logger,
	}
}

// Start consumes events until ctx is done. Events still buffered at that
// point are written before the goroutine exits.
func (r *Recorder) Start(ctx context.Context) {
	ch := r.queue.Subscribe(r.id)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.queue.Unsubscribe(r.id)
		for {
			select {
			case <-ctx.Done():
				r.drain(ch)
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				r.record(ctx, ev)
			}
		}
	}()
}

// Wait blocks until the consumer goroutine has exited.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) drain(ch <-chan domain.TickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.record(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev domain.TickEvent) {
	if err := r.store.RecordTick(ctx, ev); err != nil {
		r.logger.Printf("record tick failed id=%s tick=%d: %v", ev.ID, ev.GameTick, err)
	}
}
