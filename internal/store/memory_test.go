package store_test

import (
	"context"
	"testing"

	"github.com/vampirenirmal/convocart/internal/conversation"
	"github.com/vampirenirmal/convocart/internal/store"
)

func TestMemoryStoreArchivePreservesSlots(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	conv := conversation.NewContext("+15550001111")
	conv.SetSlot(conversation.SlotCustomerName, "Ada")
	conv.SetStateData(conversation.KeyCartID, "cart-1")
	if err := s.Put(ctx, "+15550001111", conv); err != nil {
		t.Fatal(err)
	}

	slots, err := s.Archive(ctx, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}
	if slots[conversation.SlotCustomerName] != "Ada" {
		t.Errorf("archived slots = %v, want customer name preserved", slots)
	}
	if _, err := s.Get(ctx, "+15550001111"); err != store.ErrNotFound {
		t.Errorf("Get after archive = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreGetReturnsIsolatedContext(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	conv := conversation.NewContext("+15550001111")
	conv.SetSlot(conversation.SlotCustomerName, "Ada")
	if err := s.Put(ctx, "+15550001111", conv); err != nil {
		t.Fatal(err)
	}

	// Mutations on a loaded context must stay invisible until Put.
	loaded, err := s.Get(ctx, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}
	loaded.SetStateData(conversation.KeyCartID, "leaked-cart")
	loaded.SetSlot(conversation.SlotCustomerName, "Mallory")
	loaded.AddExchange(conversation.EntryUser, "greet")

	reloaded, err := s.Get(ctx, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.StateDataString(conversation.KeyCartID); got != "" {
		t.Errorf("un-persisted state data visible in store: %q", got)
	}
	if name, _ := reloaded.Slot(conversation.SlotCustomerName); name != "Ada" {
		t.Errorf("un-persisted slot write visible in store: %v", name)
	}
	if len(reloaded.History()) != 0 {
		t.Errorf("un-persisted history visible in store: %d entries", len(reloaded.History()))
	}
}

func TestMemoryStoreConflictLoserLeavesNoTrace(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	conv := conversation.NewContext("+15550001111")
	if err := s.Put(ctx, "+15550001111", conv); err != nil {
		t.Fatal(err)
	}

	winner, err := s.Get(ctx, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}
	loser, err := s.Get(ctx, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Put(ctx, "+15550001111", winner); err != nil {
		t.Fatal(err)
	}

	loser.SetStateData(conversation.KeyCartID, "losing-write")
	if err := s.Put(ctx, "+15550001111", loser); err != store.ErrVersionConflict {
		t.Fatalf("stale save = %v, want ErrVersionConflict", err)
	}

	// The losing turn's writes must not have reached the stored record.
	reloaded, err := s.Get(ctx, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.StateDataString(conversation.KeyCartID); got != "" {
		t.Errorf("losing writer's state data leaked into store: %q", got)
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	conv := conversation.NewContext("+15550001111")
	if err := s.Put(ctx, "+15550001111", conv); err != nil {
		t.Fatal(err)
	}

	other, err := s.Get(ctx, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "+15550001111", other); err != nil {
		t.Fatal(err)
	}

	if err := s.Put(ctx, "+15550001111", conv); err != store.ErrVersionConflict {
		t.Errorf("stale save = %v, want ErrVersionConflict", err)
	}
}
