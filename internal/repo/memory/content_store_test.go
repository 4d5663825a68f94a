package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	"github.com/ivankudzin/forummod/internal/domain/model"
	"github.com/ivankudzin/forummod/internal/repo"
)

func TestCreateRejectsDuplicateID(t *testing.T) {
	store := NewContentStore()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if err := store.Create(context.Background(), item); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(context.Background(), item); !errors.Is(err, repo.ErrItemExists) {
		t.Fatalf("expected ErrItemExists, got %v", err)
	}
}

func TestApplyTransitionAppendsRecordAtomically(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.ApplyTransition(ctx, transition(item.ID, 1, enums.ModerationStatusPending, enums.ModerationStatusApproved))
	if err != nil {
		t.Fatalf("apply transition: %v", err)
	}
	if updated.Status != enums.ModerationStatusApproved || updated.Version != 2 {
		t.Fatalf("unexpected item after transition: status=%s version=%d", updated.Status, updated.Version)
	}

	got, err := store.GetWithTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("get with trail: %v", err)
	}
	if len(got.Trail) != 1 {
		t.Fatalf("expected one decision record, got %d", len(got.Trail))
	}
	record := got.Trail[0]
	if record.FromStatus != enums.ModerationStatusPending || record.ToStatus != enums.ModerationStatusApproved || record.Version != 2 {
		t.Fatalf("unexpected decision record: %+v", record)
	}
}

func TestApplyTransitionRejectsStaleVersion(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := store.ApplyTransition(ctx, transition(item.ID, 7, enums.ModerationStatusPending, enums.ModerationStatusRejected))
	if !errors.Is(err, repo.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	trail, err := store.ListTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("list trail: %v", err)
	}
	if len(trail) != 0 {
		t.Fatalf("stale transition must not append records, got %d", len(trail))
	}
}

func TestApplyTransitionCancelledLeavesNoRecord(t *testing.T) {
	store := NewContentStore()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Create(context.Background(), item); err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ApplyTransition(ctx, transition(item.ID, 1, enums.ModerationStatusPending, enums.ModerationStatusApproved))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got, err := store.GetWithTrail(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get with trail: %v", err)
	}
	if got.Item.Status != enums.ModerationStatusPending || len(got.Trail) != 0 {
		t.Fatalf("cancelled transition leaked state: status=%s trail=%d", got.Item.Status, len(got.Trail))
	}
}

func TestApplyTransitionSingleWinnerUnderRace(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			target := enums.ModerationStatusApproved
			if i%2 == 1 {
				target = enums.ModerationStatusRejected
			}
			_, err := store.ApplyTransition(ctx, transition(item.ID, 1, enums.ModerationStatusPending, target))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, repo.ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != writers-1 {
		t.Fatalf("expected exactly one winner: successes=%d conflicts=%d", successes, conflicts)
	}

	trail, err := store.ListTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("list trail: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one decision record, got %d", len(trail))
	}
}

func TestApplyTransitionRetriesAfterInterleavedVerdict(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A rescore lands after the transition built its snapshot but before it publishes.
	swaps := 0
	store.beforeSwap = func() {
		swaps++
		if swaps > 1 {
			return
		}
		if _, err := store.SetVerdict(ctx, item.ID, model.SpamVerdict{Score: 0.7, Version: "v-test"}); err != nil {
			t.Fatalf("set verdict: %v", err)
		}
		if _, err := store.IncrementReports(ctx, item.ID); err != nil {
			t.Fatalf("increment reports: %v", err)
		}
	}

	updated, err := store.ApplyTransition(ctx, transition(item.ID, 1, enums.ModerationStatusPending, enums.ModerationStatusRejected))
	if err != nil {
		t.Fatalf("transition at the current version must apply, got %v", err)
	}
	if swaps != 2 {
		t.Fatalf("expected one retry, got %d attempts", swaps)
	}
	if updated.Status != enums.ModerationStatusRejected || updated.Version != 2 {
		t.Fatalf("unexpected item: status=%s version=%d", updated.Status, updated.Version)
	}
	if updated.Verdict == nil || updated.Verdict.Score != 0.7 || updated.ReportCount != 1 {
		t.Fatalf("interleaved updates were lost: verdict=%+v reports=%d", updated.Verdict, updated.ReportCount)
	}

	trail, err := store.ListTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("list trail: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one decision record, got %d", len(trail))
	}
}

func TestApplyTransitionConflictsWithInterleavedTransition(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	store.beforeSwap = func() {
		store.beforeSwap = nil
		if _, err := store.ApplyTransition(ctx, transition(item.ID, 1, enums.ModerationStatusPending, enums.ModerationStatusApproved)); err != nil {
			t.Fatalf("competing transition: %v", err)
		}
	}

	_, err := store.ApplyTransition(ctx, transition(item.ID, 1, enums.ModerationStatusPending, enums.ModerationStatusRejected))
	if !errors.Is(err, repo.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, err := store.GetWithTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("get with trail: %v", err)
	}
	if got.Item.Status != enums.ModerationStatusApproved || len(got.Trail) != 1 {
		t.Fatalf("loser must leave no trace: status=%s trail=%d", got.Item.Status, len(got.Trail))
	}
}

func TestQueueScoreOnlyRises(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := withScore(pendingItem(t0), 0.9)
	b := withScore(pendingItem(t0), 0.5)
	for _, item := range []model.ContentItem{a, b} {
		if err := store.Create(ctx, item); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	first, err := store.ListQueue(ctx, model.QueueQuery{Status: enums.ModerationStatusPending, Limit: 1})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first) != 1 || first[0].ID != a.ID {
		t.Fatalf("unexpected first page: %+v", first)
	}

	lowered, err := store.SetVerdict(ctx, a.ID, model.SpamVerdict{Score: 0.1, Version: "v-test"})
	if err != nil {
		t.Fatalf("lower verdict: %v", err)
	}
	if lowered.SpamScore() != 0.1 || lowered.QueueScore != 0.9 {
		t.Fatalf("verdict must be latest, queue score must keep its peak: spam=%v queue=%v", lowered.SpamScore(), lowered.QueueScore)
	}

	after := model.PositionOf(first[0])
	rest, err := store.ListQueue(ctx, model.QueueQuery{Status: enums.ModerationStatusPending, After: &after, Limit: 10})
	if err != nil {
		t.Fatalf("list next page: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != b.ID {
		t.Fatalf("rescored item must not come back after the cursor: %+v", rest)
	}
}

func TestSetVerdictDoesNotBumpVersion(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	item := pendingItem(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err := store.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.SetVerdict(ctx, item.ID, model.SpamVerdict{Score: 0.4, Tags: []string{"links"}, Version: "v-test"})
	if err != nil {
		t.Fatalf("set verdict: %v", err)
	}
	if updated.Version != 1 || updated.Verdict == nil || updated.Verdict.Score != 0.4 {
		t.Fatalf("unexpected item after verdict: %+v", updated)
	}

	updated, err = store.SetVerdict(ctx, item.ID, model.SpamVerdict{Score: 0.1, Version: "v-test"})
	if err != nil {
		t.Fatalf("overwrite verdict: %v", err)
	}
	if updated.Verdict.Score != 0.1 || len(updated.Verdict.Tags) != 0 {
		t.Fatalf("latest verdict must win: %+v", updated.Verdict)
	}
}

func TestListQueueOrdersBySpamThenAge(t *testing.T) {
	store := NewContentStore()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := withScore(pendingItem(t0.Add(time.Second)), 0.9)
	b := withScore(pendingItem(t0), 0.9)
	c := withScore(pendingItem(t0), 0.2)
	unscored := pendingItem(t0.Add(-time.Hour))
	approved := withScore(pendingItem(t0), 0.99)
	approved.Status = enums.ModerationStatusApproved

	for _, item := range []model.ContentItem{a, b, c, unscored, approved} {
		if err := store.Create(ctx, item); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	items, err := store.ListQueue(ctx, model.QueueQuery{Status: enums.ModerationStatusPending, Limit: 10})
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}

	want := []uuid.UUID{b.ID, a.ID, c.ID, unscored.ID}
	if len(items) != len(want) {
		t.Fatalf("unexpected queue length: got %d want %d", len(items), len(want))
	}
	for i := range want {
		if items[i].ID != want[i] {
			t.Fatalf("unexpected order at %d: got %s want %s", i, items[i].ID, want[i])
		}
	}

	minScore := 0.5
	items, err = store.ListQueue(ctx, model.QueueQuery{Status: enums.ModerationStatusPending, MinSpamScore: &minScore, Limit: 10})
	if err != nil {
		t.Fatalf("list queue with min score: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two items above 0.5, got %d", len(items))
	}
}

func pendingItem(createdAt time.Time) model.ContentItem {
	return model.ContentItem{
		ID:        uuid.New(),
		AuthorID:  "author-1",
		Body:      "hello forum",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Status:    enums.ModerationStatusPending,
		Version:   1,
	}
}

func withScore(item model.ContentItem, score float64) model.ContentItem {
	item.Verdict = &model.SpamVerdict{Score: score, Version: "v-test"}
	return item
}

func transition(id uuid.UUID, version int64, from, to enums.ModerationStatus) model.Transition {
	return model.Transition{
		ItemID:          id,
		ExpectedVersion: version,
		FromStatus:      from,
		Record: model.DecisionRecord{
			ID:         uuid.New(),
			ReviewerID: "admin-1",
			Action:     enums.ActionForTransition(to),
			ToStatus:   to,
			DecidedAt:  time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		},
	}
}
