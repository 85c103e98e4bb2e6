package notify

import (
	"context"
	"encoding/json"
	"sync"
)

const subscriberBuffer = 64

// Broadcaster is the in-process Publisher used when no valkey server is
// configured. Slow subscribers drop events rather than block publishers.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Notification
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: map[int]chan Notification{},
	}
}

func (b *Broadcaster) Publish(_ context.Context, n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}

	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Notification, error) {
	ch := make(chan Notification, subscriberBuffer)

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

	return ch, nil
}

func encode(n Notification) ([]byte, error) {
	//nolint:wrapcheck
	return json.Marshal(n)
}

func decode(payload string) (Notification, error) {
	var n Notification

	err := json.Unmarshal([]byte(payload), &n)

	//nolint:wrapcheck
	return n, err
}
