package wake

import (
	"context"
	"sync"
)

// Bus carries best-effort "work is ready for stage X" hints between processes.
// Losing a message only delays work until the next poll tick.
type Bus interface {
	Publish(ctx context.Context, stage string) error
	Subscribe(ctx context.Context, onWake func(stage string)) error
	Close() error
}

type localBus struct {
	mu     sync.RWMutex
	subs   map[int]func(string)
	nextID int
}

// NewLocal returns an in-process bus.
func NewLocal() Bus {
	return &localBus{subs: map[int]func(string){}}
}

func (b *localBus) Publish(ctx context.Context, stage string) error {
	b.mu.RLock()
	subs := make([]func(string), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(stage)
	}
	return nil
}

func (b *localBus) Subscribe(ctx context.Context, onWake func(stage string)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = onWake
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	b.subs = map[int]func(string){}
	b.mu.Unlock()
	return nil
}
