package library

import (
	"context"
	"testing"
)

func strp(s string) *string { return &s }

func TestMemStoreOrderAndUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(
		Item{TitleID: "0100000000010000", Name: "B"},
		Item{TitleID: "0100000000020000", Name: "A"},
	)
	_, _ = s.UpsertUpdate(ctx, "0100000000010000", Item{TitleID: "0100000000010800", Version: 131072})
	_, _ = s.UpsertUpdate(ctx, "0100000000010000", Item{TitleID: "0100000000010800", Version: 65536})
	if stored, _ := s.UpsertUpdate(ctx, "0100000000099000", Item{TitleID: "0100000000099800", Version: 1}); stored {
		t.Fatal("orphan update reported as stored")
	}

	items, err := s.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Name != "B" || items[1].Name != "A" {
		t.Fatalf("order not preserved: %+v", items)
	}
	ups := items[0].Updates
	if len(ups) != 2 || ups[0].Version != 65536 || ups[1].Version != 131072 {
		t.Fatalf("updates not sorted by version: %+v", ups)
	}

	got, _ := s.Get(ctx, "0100000000010800")
	if got == nil || got.Version != 131072 {
		t.Fatalf("Get(update) = %+v, want latest version", got)
	}
	if got, _ := s.Get(ctx, "0100000000099800"); got != nil {
		t.Fatalf("orphan update should not be stored, got %+v", got)
	}
}

func TestMemStoreItemsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(Item{TitleID: "X", Name: "orig", Updates: []Item{{TitleID: "U"}}})
	items, _ := s.Items(ctx)
	items[0].Name = "changed"
	items[0].Updates[0].TitleID = "changed"

	again, _ := s.Items(ctx)
	if again[0].Name != "orig" || again[0].Updates[0].TitleID != "U" {
		t.Fatalf("store mutated through Items result: %+v", again[0])
	}
}

func TestItemHelpers(t *testing.T) {
	var it Item
	if it.SizeBytes() != 0 || it.MTime() != 0 || it.Downloaded() || it.FileName() != "" {
		t.Fatalf("zero item helpers wrong")
	}
	it.RomPath = "/roms/Game [0100000000010000].nsp"
	if it.FileName() != "Game [0100000000010000].nsp" {
		t.Fatalf("FileName = %q", it.FileName())
	}
}
