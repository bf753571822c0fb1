package events

import (
	"math/big"
	"testing"
)

func TestRingBuffer_EmitAndRecent(t *testing.T) {
	rb := NewRingBuffer(4)

	rb.Emit(Event{Type: TypeItemListed, Collection: "a", TokenID: "1", Amount: big.NewInt(10)})
	rb.Emit(Event{Type: TypeItemSold, Collection: "a", TokenID: "1", Amount: big.NewInt(10)})

	recent := rb.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
	// Newest first.
	if recent[0].Type != TypeItemSold || recent[1].Type != TypeItemListed {
		t.Fatalf("wrong order: %v %v", recent[0].Type, recent[1].Type)
	}
	for _, e := range recent {
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Fatalf("event missing ID or timestamp: %+v", e)
		}
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Emit(Event{Type: TypeItemListed, TokenID: string(rune('a' + i))})
	}
	if rb.Count() != 3 {
		t.Fatalf("count: %d", rb.Count())
	}
	recent := rb.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	if recent[0].TokenID != "e" || recent[2].TokenID != "c" {
		t.Fatalf("oldest events not evicted: %+v", recent)
	}
}

func TestRingBuffer_RecentByType(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Emit(Event{Type: TypeItemListed})
	rb.Emit(Event{Type: TypeItemSold})
	rb.Emit(Event{Type: TypeItemListed})

	listed := rb.RecentByType(TypeItemListed, 10)
	if len(listed) != 2 {
		t.Fatalf("expected 2 listed events, got %d", len(listed))
	}
	sold := rb.RecentByType(TypeItemSold, 10)
	if len(sold) != 1 {
		t.Fatalf("expected 1 sold event, got %d", len(sold))
	}
	if rb.RecentByType(TypeRevenueWithdrawn, 10) != nil {
		t.Fatalf("expected no withdrawal events")
	}
}

func TestRingBuffer_Subscribe(t *testing.T) {
	rb := NewRingBuffer(8)

	var seen []Event
	unsubscribe := rb.Subscribe(func(e Event) {
		seen = append(seen, e)
	})

	rb.Emit(Event{Type: TypeItemListed})
	if len(seen) != 1 {
		t.Fatalf("handler not notified: %d", len(seen))
	}

	unsubscribe()
	rb.Emit(Event{Type: TypeItemSold})
	if len(seen) != 1 {
		t.Fatalf("handler notified after unsubscribe: %d", len(seen))
	}
}
