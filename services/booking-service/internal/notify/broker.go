package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broker fans notification payloads out to the live connections of a user.
type Broker interface {
	Publish(ctx context.Context, userID string, payload []byte) error
	// Subscribe returns a channel of payloads for userID. The channel is
	// closed after the returned cancel func runs or ctx ends.
	Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error)
}

func channelFor(userID string) string { return "notifications:" + userID }

// RedisBroker shares notifications between booking-service replicas.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, userID string, payload []byte) error {
	return b.rdb.Publish(ctx, channelFor(userID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	sub := b.rdb.Subscribe(ctx, channelFor(userID))
	// Wait for the confirmation so no publish is missed after we return.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done); _ = sub.Close() }) }

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				default:
					// Slow consumer; drop rather than block the subscription.
				}
			}
		}
	}()
	return out, stop, nil
}

// LocalBroker is the single-process broker used when Redis is not configured.
type LocalBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: map[string]map[chan []byte]struct{}{}}
}

func (b *LocalBroker) Publish(_ context.Context, userID string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[userID] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = map[chan []byte]struct{}{}
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ch, stop, nil
}
