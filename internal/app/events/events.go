// Package events provides the structured event log the exchange engine emits
// for external indexers and observers. Listing lifecycle and settlement
// events are recorded in a ring buffer with subscription support.
package events

import (
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a marketplace event.
type Type string

const (
	// TypeItemListed is emitted when a new listing is created.
	TypeItemListed Type = "market.item_listed"

	// TypePriceUpdated is emitted when a listing price is overwritten.
	TypePriceUpdated Type = "market.price_updated"

	// TypeListingCancelled is emitted when a seller cancels a listing.
	TypeListingCancelled Type = "market.listing_cancelled"

	// TypeItemSold is emitted after a purchase settles.
	TypeItemSold Type = "market.item_sold"

	// TypeRevenueWithdrawn is emitted after an admin fee withdrawal.
	TypeRevenueWithdrawn Type = "market.revenue_withdrawn"
)

// Event is a single marketplace occurrence.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Collection string `json:"collection,omitempty"`
	TokenID    string `json:"token_id,omitempty"`
	Seller     string `json:"seller,omitempty"`
	Buyer      string `json:"buyer,omitempty"`
	Recipient  string `json:"recipient,omitempty"`

	// Amount is the listing price, sale price paid, or withdrawal amount
	// depending on the event type.
	Amount *big.Int `json:"amount,omitempty"`
}

// String returns the JSON representation.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// Handler processes events as they occur.
type Handler func(Event)

// Log is the interface the engine emits through.
type Log interface {
	// Emit records an event.
	Emit(event Event)

	// Subscribe registers a handler and returns an unsubscribe function.
	Subscribe(handler Handler) func()

	// Recent returns the most recent N events, newest first.
	Recent(n int) []Event

	// RecentByType returns recent events of a specific type, newest first.
	RecentByType(eventType Type, n int) []Event
}

// RingBuffer is a thread-safe circular event buffer.
type RingBuffer struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	handler Handler
}

var _ Log = (*RingBuffer)(nil)

// NewRingBuffer creates an event buffer holding up to size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

// Emit adds an event to the buffer and notifies subscribers.
func (rb *RingBuffer) Emit(event Event) {
	rb.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}

	handlers := make([]handlerEntry, len(rb.handlers))
	copy(handlers, rb.handlers)
	rb.mu.Unlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		h.handler(event)
	}
}

// Subscribe registers a handler for all events.
func (rb *RingBuffer) Subscribe(handler Handler) func() {
	rb.mu.Lock()
	id := rb.nextID
	rb.nextID++
	rb.handlers = append(rb.handlers, handlerEntry{id: id, handler: handler})
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		for i, h := range rb.handlers {
			if h.id == id {
				rb.handlers = append(rb.handlers[:i], rb.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent N events in reverse chronological order.
func (rb *RingBuffer) Recent(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		result[i] = rb.events[idx]
	}
	return result
}

// RecentByType returns recent events of a specific type.
func (rb *RingBuffer) RecentByType(eventType Type, n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < rb.count && len(result) < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		if rb.events[idx].Type == eventType {
			result = append(result, rb.events[idx])
		}
	}
	return result
}

// Count returns the number of buffered events.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// NopLog discards all events. Intended for tests.
type NopLog struct{}

var _ Log = NopLog{}

func (NopLog) Emit(Event)                     {}
func (NopLog) Subscribe(Handler) func()       { return func() {} }
func (NopLog) Recent(int) []Event             { return nil }
func (NopLog) RecentByType(Type, int) []Event { return nil }
