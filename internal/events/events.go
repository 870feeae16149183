package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event kinds emitted by the ledger core. The notification layer subscribes
// to these; the core never sends anything itself.
const (
	TradeExecuted       = "trade.executed"
	InvestmentMatured   = "investment.matured"
	TransactionReviewed = "transaction.reviewed"
)

// Event carries a domain occurrence worth notifying about.
type Event struct {
	Kind       string
	UserID     string
	ResourceID string
	OccurredAt time.Time
	Payload    interface{}
}

// Handler receives published events.
type Handler func(Event)

// Bus is a minimal in-process publish/subscribe dispatcher. Publishing never
// blocks the caller's request path and a panicking subscriber cannot take
// down the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for the given event kind.
func (b *Bus) Subscribe(kind string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish dispatches the event to all subscribers of its kind.
func (b *Bus) Publish(evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[evt.Kind]))
	copy(handlers, b.handlers[evt.Kind])
	b.mu.RUnlock()

	for _, h := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("event_kind", evt.Kind).
						Interface("panic", r).
						Msg("event handler panicked")
				}
			}()
			h(evt)
		}(h)
	}
}
