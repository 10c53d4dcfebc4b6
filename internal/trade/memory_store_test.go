package trade

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	requests := []*Request{
		{ID: "t1", Intent: "trade eth", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", Intent: "trade btc", Status: StatusFailed, MaxRetries: 3},
		{ID: "t3", Intent: "trade sol", Status: StatusSucceeded, MaxRetries: 3},
	}

	for _, req := range requests {
		if err := store.Create(ctx, req); err != nil {
			t.Fatalf("create request %s: %v", req.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "t2", CodeRequestProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", Outcome{Kind: "executed", TxHash: "0xabc"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.requests["t1"].UpdatedAt = base.Unix()
	store.requests["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.requests["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest request first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	answered, err := store.List(ctx, buildListOptions([]ListOption{WithOutcomePresence(true)}))
	if err != nil {
		t.Fatalf("list with outcome: %v", err)
	}
	if len(answered) != 1 || answered[0].ID != "t3" {
		t.Fatalf("unexpected outcome list: %+v", answered)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 requests to match since filter, got %d", len(recent))
	}

	byQuery, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("btc")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "t2" {
		t.Fatalf("unexpected query list: %+v", byQuery)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Request{ID: "r1", Intent: "trade eth", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed state: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "r1"); !IsRequestError(err, CodeRequestConflict) {
		t.Fatalf("expected conflict on double claim, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "r1", Outcome{Kind: "hold", Message: "no trade"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); !IsRequestError(err, CodeRequestCompleted) {
		t.Fatalf("expected completed on claim after success, got %v", err)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	requests := []*Request{
		{ID: "a", Intent: "g1", Status: StatusPending, MaxRetries: 3},
		{ID: "b", Intent: "g2", Status: StatusPending, MaxRetries: 3},
		{ID: "c", Intent: "g3", Status: StatusPending, MaxRetries: 3},
	}

	for _, req := range requests {
		if err := store.Create(ctx, req); err != nil {
			t.Fatalf("create request %s: %v", req.ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "b", CodeRequestProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", Outcome{Kind: "executed", TxHash: "0xabc"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.requests["a"].UpdatedAt = base.Unix()
	store.requests["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.requests["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withOutcome, err := store.Stats(ctx, buildListOptions([]ListOption{WithOutcomePresence(true)}))
	if err != nil {
		t.Fatalf("stats with outcome: %v", err)
	}
	if withOutcome.Total != 1 || withOutcome.Succeeded != 1 {
		t.Fatalf("unexpected stats with outcome: %+v", withOutcome)
	}

	failedOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("stats failed only: %v", err)
	}
	if failedOnly.Total != 1 || failedOnly.Failed != 1 {
		t.Fatalf("unexpected failed stats: %+v", failedOnly)
	}
}
