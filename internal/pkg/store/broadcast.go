package store

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrBucketNotFound = errors.New("bucket doesn't exist")
	ErrExists         = errors.New("record already exists")
	ErrNotFound       = errors.New("record not found")
)

// broadcaster hands every subscriber the latest value. Each subscriber has a
// one-slot buffer; an unread value is replaced by the newer one.
type broadcaster[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan T
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{
		subs: map[int]chan T{},
	}
}

func (b *broadcaster[T]) subscribe(ctx context.Context, initial T) <-chan T {
	ch := make(chan T, 1)
	ch <- initial

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}

		ch <- v
	}
}
