package session

import "sync"

// Published holds a current value and fans every new value out to
// subscribers. A slow subscriber only ever sees the latest value.
type Published[T any] struct {
	mu    sync.Mutex
	value T
	next  int
	subs  map[int]chan T
}

func NewPublished[T any](initial T) *Published[T] {
	return &Published[T]{value: initial, subs: make(map[int]chan T)}
}

// Get returns the current value.
func (p *Published[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Publish replaces the current value and notifies subscribers.
func (p *Published[T]) Publish(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = v
	for _, ch := range p.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel primed with the current value and a cancel
// func that closes it.
func (p *Published[T]) Subscribe() (<-chan T, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan T, 1)
	ch <- p.value
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (p *Published[T]) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// offer replaces a pending value so the channel never blocks the publisher.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
