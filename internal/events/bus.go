// Package events is the ledger's publish/subscribe surface. Other modules
// subscribe to committed ledger changes instead of listening on ambient
// global signals; events are published only after the store transaction has
// committed and always carry freshly recomputed summaries.
package events

import (
	"sync"
	"time"

	"shopbook/backend/internal/domain"
)

type Kind string

const (
	SaleRecorded    Kind = "sale_recorded"
	DebtCreated     Kind = "debt_created"
	PaymentRecorded Kind = "payment_recorded"
)

type Event struct {
	Kind        Kind
	Sale        *domain.Sale
	Debt        *domain.Debt
	Summary     domain.DaySummary
	Receivables domain.ReceivablesSummary
	At          time.Time
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a cancel func. The channel is
// closed on cancel or bus close.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish never blocks the committing caller: a subscriber that has fallen
// behind misses the event and is expected to re-read summaries on demand.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
