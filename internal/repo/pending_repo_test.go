package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brandvote/go-voting-backend/internal/domain"
)

func pendingVote(business string, proposal int64, user string) *domain.PendingVote {
	return &domain.PendingVote{
		ID:                fmt.Sprintf("%s-%d-%s", business, proposal, user),
		BusinessID:        business,
		ProposalID:        proposal,
		UserID:            user,
		SelectedProductID: "prod-1",
	}
}

func TestEnqueuePendingVote_SuccessAndDefaults(t *testing.T) {
	db := newTestDB(t, &domain.PendingVote{})

	v := pendingVote("B1", 1, "U1")
	id, err := EnqueuePendingVote(context.Background(), db, v)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != v.ID {
		t.Fatalf("returned id %q, want %q", id, v.ID)
	}
	if v.Status != domain.StatusUnprocessed {
		t.Fatalf("status %q, want unprocessed", v.Status)
	}
	if v.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not defaulted")
	}
}

func TestEnqueuePendingVote_DuplicateTriple(t *testing.T) {
	db := newTestDB(t, &domain.PendingVote{})
	ctx := context.Background()

	if _, err := EnqueuePendingVote(ctx, db, pendingVote("B1", 1, "U1")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	// Same triple while unprocessed -> ErrDuplicate.
	dup := pendingVote("B1", 1, "U1")
	dup.ID = "other-vote-id"
	if _, err := EnqueuePendingVote(ctx, db, dup); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// A different user on the same proposal is fine.
	if _, err := EnqueuePendingVote(ctx, db, pendingVote("B1", 1, "U2")); err != nil {
		t.Fatalf("enqueue other user: %v", err)
	}

	// Once the prior vote is processed, the same triple may vote again.
	if _, err := MarkProcessed(ctx, db, []string{"B1-1-U1"}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	again := pendingVote("B1", 1, "U1")
	again.ID = "revote"
	if _, err := EnqueuePendingVote(ctx, db, again); err != nil {
		t.Fatalf("re-vote after settlement: %v", err)
	}
}

func TestListUnprocessed_OldestFirstAndFilters(t *testing.T) {
	db := newTestDB(t, &domain.PendingVote{})
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, user := range []string{"U3", "U1", "U2"} {
		v := pendingVote("B1", 1, user)
		v.CreatedAt = base.Add(time.Duration(2-i) * time.Hour) // U3 newest, U2 oldest
		if _, err := EnqueuePendingVote(ctx, db, v); err != nil {
			t.Fatalf("enqueue %s: %v", user, err)
		}
	}
	// Noise on another proposal and business.
	if _, err := EnqueuePendingVote(ctx, db, pendingVote("B1", 2, "U9")); err != nil {
		t.Fatalf("enqueue noise: %v", err)
	}
	if _, err := EnqueuePendingVote(ctx, db, pendingVote("B2", 1, "U9")); err != nil {
		t.Fatalf("enqueue noise: %v", err)
	}

	p1 := int64(1)
	got, err := ListUnprocessed(ctx, db, PendingFilter{BusinessID: "B1", ProposalID: &p1}, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d votes, want 3", len(got))
	}
	if got[0].UserID != "U2" || got[1].UserID != "U1" || got[2].UserID != "U3" {
		t.Fatalf("not oldest-first: %s %s %s", got[0].UserID, got[1].UserID, got[2].UserID)
	}

	// Limit applies after ordering.
	got, err = ListUnprocessed(ctx, db, PendingFilter{BusinessID: "B1", ProposalID: &p1}, 2, 0)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(got) != 2 || got[0].UserID != "U2" {
		t.Fatalf("limited list wrong: %+v", got)
	}

	// User filter.
	got, err = ListUnprocessed(ctx, db, PendingFilter{BusinessID: "B1", UserID: "U9"}, 0, 0)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(got) != 1 || got[0].ProposalID != 2 {
		t.Fatalf("user filter wrong: %+v", got)
	}
}

func TestMarkProcessed_CountsAndIdempotent(t *testing.T) {
	db := newTestDB(t, &domain.PendingVote{})
	ctx := context.Background()

	for _, u := range []string{"U1", "U2", "U3"} {
		if _, err := EnqueuePendingVote(ctx, db, pendingVote("B1", 1, u)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	n, err := MarkProcessed(ctx, db, []string{"B1-1-U1", "B1-1-U2"})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if n != 2 {
		t.Fatalf("marked %d, want 2", n)
	}

	// Re-marking the same votes (plus an unknown ID) affects nothing.
	n, err = MarkProcessed(ctx, db, []string{"B1-1-U1", "B1-1-U2", "missing"})
	if err != nil {
		t.Fatalf("re-mark: %v", err)
	}
	if n != 0 {
		t.Fatalf("re-mark affected %d rows, want 0", n)
	}

	// Empty input is a no-op.
	if n, err = MarkProcessed(ctx, db, nil); err != nil || n != 0 {
		t.Fatalf("empty mark: n=%d err=%v", n, err)
	}

	unprocessed, err := CountUnprocessed(ctx, db, "B1")
	if err != nil {
		t.Fatalf("count unprocessed: %v", err)
	}
	if unprocessed != 1 {
		t.Fatalf("unprocessed %d, want 1", unprocessed)
	}
	total, err := CountEnqueued(ctx, db, "B1")
	if err != nil {
		t.Fatalf("count enqueued: %v", err)
	}
	if total != 3 {
		t.Fatalf("enqueued %d, want 3", total)
	}
}

func TestBacklogQueries(t *testing.T) {
	db := newTestDB(t, &domain.PendingVote{})
	ctx := context.Background()

	for _, v := range []*domain.PendingVote{
		pendingVote("B1", 2, "U1"),
		pendingVote("B1", 1, "U1"),
		pendingVote("B2", 7, "U1"),
	} {
		if _, err := EnqueuePendingVote(ctx, db, v); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if _, err := MarkProcessed(ctx, db, []string{"B2-7-U1"}); err != nil {
		t.Fatalf("mark: %v", err)
	}

	props, err := ProposalsWithBacklog(ctx, db, "B1")
	if err != nil {
		t.Fatalf("proposals: %v", err)
	}
	if len(props) != 2 || props[0] != 1 || props[1] != 2 {
		t.Fatalf("proposals %v, want [1 2]", props)
	}

	bizs, err := BusinessesWithBacklog(ctx, db)
	if err != nil {
		t.Fatalf("businesses: %v", err)
	}
	if len(bizs) != 1 || bizs[0] != "B1" {
		t.Fatalf("businesses %v, want [B1]", bizs)
	}
}

func TestDailyActivity_BucketsByDay(t *testing.T) {
	db := newTestDB(t, &domain.PendingVote{})
	ctx := context.Background()

	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	stamps := []time.Time{
		day1.Add(9 * time.Hour),
		day1.Add(17 * time.Hour),
		day1.AddDate(0, 0, 2).Add(3 * time.Hour),
	}
	for i, ts := range stamps {
		v := pendingVote("B1", int64(i+1), "U1")
		v.CreatedAt = ts
		if _, err := EnqueuePendingVote(ctx, db, v); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	got, err := DailyActivity(ctx, db, "B1", day1, day1.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("daily activity: %v", err)
	}
	if got["2026-08-01"] != 2 || got["2026-08-03"] != 1 {
		t.Fatalf("unexpected buckets: %v", got)
	}
	if len(got) != 2 {
		t.Fatalf("expected empty days absent, got %v", got)
	}

	// Range is [from, to).
	got, err = DailyActivity(ctx, db, "B1", day1, day1.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("daily activity narrow: %v", err)
	}
	if len(got) != 1 || got["2026-08-01"] != 2 {
		t.Fatalf("unexpected narrow buckets: %v", got)
	}
}
