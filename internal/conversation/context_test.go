package conversation_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/vampirenirmal/convocart/internal/conversation"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestHistoryBounded(t *testing.T) {
	conv := conversation.NewContext("+15550001111")
	for i := 0; i < 25; i++ {
		conv.AddExchange(conversation.EntryUser, fmt.Sprintf("message %d", i))
	}

	history := conv.History()
	if len(history) != conversation.MaxHistory {
		t.Fatalf("history length = %d, want %d", len(history), conversation.MaxHistory)
	}
	// Oldest-first, and only the most recent entries survive.
	if history[0].Content != "message 15" {
		t.Errorf("oldest entry = %q, want %q", history[0].Content, "message 15")
	}
	if history[len(history)-1].Content != "message 24" {
		t.Errorf("newest entry = %q, want %q", history[len(history)-1].Content, "message 24")
	}
}

func TestIsTimedOutInclusiveBoundary(t *testing.T) {
	clock := newFakeClock()
	conv := conversation.NewContext("+15550001111", conversation.WithClock(clock.Now))

	threshold := 60 * time.Second

	clock.Advance(59 * time.Second)
	if conv.IsTimedOut(threshold) {
		t.Error("timed out at threshold-1s")
	}

	clock.Advance(1 * time.Second)
	if !conv.IsTimedOut(threshold) {
		t.Error("not timed out exactly at threshold (boundary must be inclusive)")
	}

	clock.Advance(1 * time.Second)
	if !conv.IsTimedOut(threshold) {
		t.Error("not timed out past threshold")
	}
}

func TestIsExpiredAfterDefaultTimeout(t *testing.T) {
	clock := newFakeClock()
	conv := conversation.NewContext("+15550001111", conversation.WithClock(clock.Now))

	clock.Advance(25 * time.Hour)
	if !conv.IsTimedOut(24 * time.Hour) {
		t.Error("expected timed out after 25h of inactivity")
	}
	if !conv.IsExpired() {
		t.Error("expected expired after 25h with default 24h timeout")
	}
}

func TestMutationExtendsExpiry(t *testing.T) {
	clock := newFakeClock()
	conv := conversation.NewContext("+15550001111",
		conversation.WithClock(clock.Now),
		conversation.WithTimeout(time.Hour))

	clock.Advance(50 * time.Minute)
	conv.SetStateData(conversation.KeySubPhase, conversation.SubPhaseViewingProduct)

	want := clock.Now().Add(time.Hour)
	if !conv.ExpiresAt().Equal(want) {
		t.Errorf("expiresAt = %v, want %v", conv.ExpiresAt(), want)
	}
	clock.Advance(50 * time.Minute)
	if conv.IsExpired() {
		t.Error("context expired despite recent activity")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	clock := newFakeClock()
	conv := conversation.NewContext("+15550001111", conversation.WithClock(clock.Now))

	if err := conv.TransitionTo(conversation.PhaseBrowsing); err != nil {
		t.Fatal(err)
	}
	conv.SetStateData(conversation.KeyCartID, "cart-1")
	conv.SetSlot(conversation.SlotCustomerName, "Ada")
	conv.AddExchange(conversation.EntryUser, "browse_products")

	restored := conversation.FromSnapshot(conv.Snapshot(), conversation.WithClock(clock.Now))

	if restored.Principal() != conv.Principal() {
		t.Errorf("principal = %q, want %q", restored.Principal(), conv.Principal())
	}
	if restored.Phase() != conversation.PhaseBrowsing {
		t.Errorf("phase = %s, want BROWSING", restored.Phase())
	}
	if got := restored.StateDataString(conversation.KeyCartID); got != "cart-1" {
		t.Errorf("state data cart id = %q, want %q", got, "cart-1")
	}
	if v, ok := restored.Slot(conversation.SlotCustomerName); !ok || v != "Ada" {
		t.Errorf("slot customer name = %v, %v", v, ok)
	}
	if len(restored.History()) != len(conv.History()) {
		t.Errorf("history length = %d, want %d", len(restored.History()), len(conv.History()))
	}
	// Expiry is recomputed from last activity plus the timeout.
	want := conv.LastActivityAt().Add(conversation.DefaultTimeout)
	if !restored.ExpiresAt().Equal(want) {
		t.Errorf("expiresAt = %v, want %v", restored.ExpiresAt(), want)
	}
}

func TestFromSnapshotDoesNotAliasSnapshot(t *testing.T) {
	conv := conversation.NewContext("+15550001111")
	conv.SetStateData(conversation.KeyCartID, "cart-1")
	conv.SetSlot(conversation.SlotCustomerName, "Ada")
	conv.AddExchange(conversation.EntryUser, "greet")
	snap := conv.Snapshot()

	restored := conversation.FromSnapshot(snap)
	restored.SetStateData(conversation.KeyCartID, "cart-2")
	restored.SetSlot(conversation.SlotCustomerName, "Mallory")
	restored.AddExchange(conversation.EntryUser, "browse_products")

	// The snapshot a store may still be holding stays untouched.
	if snap.StateData[conversation.KeyCartID] != "cart-1" {
		t.Errorf("snapshot state data mutated through restored context: %v",
			snap.StateData[conversation.KeyCartID])
	}
	if snap.Slots[conversation.SlotCustomerName] != "Ada" {
		t.Errorf("snapshot slots mutated through restored context: %v",
			snap.Slots[conversation.SlotCustomerName])
	}
	if len(snap.History) != 1 {
		t.Errorf("snapshot history mutated through restored context: %d entries", len(snap.History))
	}
}

func TestResetKeepsSlots(t *testing.T) {
	conv := conversation.NewContext("+15550001111")
	if err := conv.TransitionTo(conversation.PhaseBrowsing); err != nil {
		t.Fatal(err)
	}
	conv.SetStateData(conversation.KeyCartID, "cart-1")
	conv.SetSlot(conversation.SlotCustomerName, "Ada")

	conv.Reset()

	if conv.Phase() != conversation.PhaseInitial {
		t.Errorf("phase after reset = %s, want INITIAL", conv.Phase())
	}
	if _, ok := conv.StateData(conversation.KeyCartID); ok {
		t.Error("state data survived reset")
	}
	if len(conv.History()) != 0 {
		t.Error("history survived reset")
	}
	// Reset is a pure-context operation: it does not touch slots.
	if _, ok := conv.Slot(conversation.SlotCustomerName); !ok {
		t.Error("slot dropped by reset; slot policy belongs to the store")
	}
}

func TestMergeStateDataNilDeletes(t *testing.T) {
	conv := conversation.NewContext("+15550001111")
	conv.SetStateData(conversation.KeySubPhase, conversation.SubPhaseViewingProduct)

	conv.MergeStateData(map[string]any{
		conversation.KeySubPhase: nil,
		conversation.KeyCartID:   "cart-9",
	})

	if _, ok := conv.StateData(conversation.KeySubPhase); ok {
		t.Error("nil patch value should delete the key")
	}
	if got := conv.StateDataString(conversation.KeyCartID); got != "cart-9" {
		t.Errorf("cart id = %q, want cart-9", got)
	}
}
