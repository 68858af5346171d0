package state

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	s := NewSession("SES-1", "CASE-1", now)
	s.Context.Identifier = &contractx.Identifier{Kind: contractx.IdentifierEmail, Value: "alice@example.com"}
	s.Context.SelectedItemIDs = []string{"ITM-2001"}
	s.AppendMessage("assistant", "Select your order.", now)
	s.AppendEvent("Session started", "", now)

	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(ctx, "SES-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.CaseID != "CASE-1" || loaded.Status != StateCollectingIdentifier {
		t.Fatalf("loaded session = %+v", loaded)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "Select your order." {
		t.Fatalf("messages = %+v", loaded.Messages)
	}
	if loaded.Context.Identifier == nil || loaded.Context.Identifier.Value != "alice@example.com" {
		t.Fatalf("identifier = %+v", loaded.Context.Identifier)
	}
}

func TestMemoryStoreLoadIsolated(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	s := NewSession("SES-1", "CASE-1", now)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, _ := store.Load(ctx, "SES-1")
	loaded.AppendMessage("assistant", "mutated", now)
	loaded.Context.SelectedOrderID = "ORD-9999"

	again, _ := store.Load(ctx, "SES-1")
	if len(again.Messages) != 0 {
		t.Fatalf("store leaked caller mutation: %+v", again.Messages)
	}
	if again.Context.SelectedOrderID != "" {
		t.Fatalf("store leaked context mutation: %q", again.Context.SelectedOrderID)
	}
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if _, err := store.Load(context.Background(), "SES-missing"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
	if _, err := store.Load(context.Background(), "  "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestMemoryStoreSaveRejectsNil(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if err := store.Save(context.Background(), nil); !errors.Is(err, ErrNilSessionState) {
		t.Fatalf("expected ErrNilSessionState, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	s := NewSession("SES-1", "CASE-1", time.Now())
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, "SES-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "SES-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound after delete, got %v", err)
	}
}
