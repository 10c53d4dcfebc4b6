package mysql

import (
	"context"
	"testing"
)

func TestFileNonceStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileNonceStore(dir, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	ctx := context.Background()
	value, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if value != 0 {
		t.Fatalf("expected 0 for fresh store, got %d", value)
	}

	if err := store.Save(ctx, 5); err != nil {
		t.Fatalf("save: %v", err)
	}
	value, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if value != 5 {
		t.Fatalf("expected 5, got %d", value)
	}
}

func TestFileNonceStoreNeverRewindsWatermark(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileNonceStore(dir, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, 10); err != nil {
		t.Fatalf("save 10: %v", err)
	}
	if err := store.Save(ctx, 3); err != nil {
		t.Fatalf("save 3: %v", err)
	}

	value, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if value != 10 {
		t.Fatalf("watermark rewound to %d", value)
	}
}

func TestFileNonceStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	addr := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	first, err := NewFileNonceStore(dir, addr)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()
	if err := first.Save(ctx, 42); err != nil {
		t.Fatalf("save: %v", err)
	}

	second, err := NewFileNonceStore(dir, addr)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	value, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if value != 42 {
		t.Fatalf("expected 42 after reopen, got %d", value)
	}
}
