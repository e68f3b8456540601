// Package events fans committed ledger activity out to in-process listeners.
package events

import (
	"sync"

	"github.com/vadiminshakov/carteira/internal/domain"
)

// LedgerBroadcaster delivers ledger events to every subscriber over buffered channels.
type LedgerBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.LedgerEvent]struct{}
	buffer int
	closed bool
}

// NewLedgerBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewLedgerBroadcaster(buffer int) *LedgerBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &LedgerBroadcaster{
		subs:   make(map[chan domain.LedgerEvent]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping it for slow readers.
func (b *LedgerBroadcaster) Publish(e domain.LedgerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe or Close.
func (b *LedgerBroadcaster) Subscribe() <-chan domain.LedgerEvent {
	ch := make(chan domain.LedgerEvent, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[ch] = struct{}{}
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *LedgerBroadcaster) Unsubscribe(sub <-chan domain.LedgerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *LedgerBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Subscribers reports the number of active subscriptions.
func (b *LedgerBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
