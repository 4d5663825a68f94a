package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	"github.com/ivankudzin/forummod/internal/domain/model"
)

func TestDecideAppliesOnceThenRejectsRedecide(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := submit(t, svc, "first post")

	approved, err := svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusApproved})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if approved.Status != enums.ModerationStatusApproved || approved.Version != 2 {
		t.Fatalf("unexpected decided item: status=%s version=%d", approved.Status, approved.Version)
	}

	_, err = svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 2, Status: enums.ModerationStatusRejected})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for terminal item, got %v", err)
	}

	_, err = svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusRejected})
	if !errors.Is(err, ErrConcurrentDecisionConflict) {
		t.Fatalf("expected ErrConcurrentDecisionConflict for stale version, got %v", err)
	}
}

func TestDecideRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := submit(t, svc, "first post")

	tests := []struct {
		name     string
		reviewer Reviewer
		req      DecideRequest
		want     error
	}{
		{name: "anonymous", reviewer: Reviewer{}, req: DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusApproved}, want: ErrUnauthorized},
		{name: "not admin", reviewer: Reviewer{ID: "user-1"}, req: DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusApproved}, want: ErrUnauthorized},
		{name: "unknown status", reviewer: admin, req: DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatus("deleted")}, want: ErrValidation},
		{name: "pending target", reviewer: admin, req: DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusPending}, want: ErrInvalidTransition},
		{name: "missing version", reviewer: admin, req: DecideRequest{ItemID: item.ID, Status: enums.ModerationStatusApproved}, want: ErrValidation},
		{name: "unknown item", reviewer: admin, req: DecideRequest{ItemID: uuid.New(), ExpectedVersion: 1, Status: enums.ModerationStatusApproved}, want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Decide(ctx, tt.reviewer, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	trail, err := svc.GetAuditTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("get audit trail: %v", err)
	}
	if len(trail) != 0 {
		t.Fatalf("refused decisions must not append records, got %d", len(trail))
	}
}

func TestConcurrentDecideHasSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := submit(t, svc, "contested post")

	const reviewers = 24
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			target := enums.ModerationStatusApproved
			if i%2 == 0 {
				target = enums.ModerationStatusRejected
			}
			_, err := svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: target})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConcurrentDecisionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != reviewers-1 {
		t.Fatalf("expected exactly one applied decision: successes=%d conflicts=%d", successes, conflicts)
	}

	trail, err := svc.GetAuditTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("get audit trail: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected one decision record, got %d", len(trail))
	}
}

func TestDecideIsSerializedByInFlightGuard(t *testing.T) {
	svc, _ := newTestService(t)
	item := submit(t, svc, "guarded post")

	svc.inflight.Store(item.ID, struct{}{})
	_, err := svc.Decide(context.Background(), admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusApproved})
	if !errors.Is(err, ErrConcurrentDecisionConflict) {
		t.Fatalf("expected conflict while another decision is in flight, got %v", err)
	}

	svc.inflight.Delete(item.ID)
	if _, err := svc.Decide(context.Background(), admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusApproved}); err != nil {
		t.Fatalf("decide after guard released: %v", err)
	}
}

func TestReopenIsTheOnlyWayBackToPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := submit(t, svc, "reopen me")

	if _, err := svc.Reopen(ctx, admin, ReopenRequest{ItemID: item.ID, ExpectedVersion: 1}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reopen on pending must be invalid, got %v", err)
	}

	if _, err := svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusRejected}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.Reopen(ctx, Reviewer{ID: "user-1"}, ReopenRequest{ItemID: item.ID, ExpectedVersion: 2}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("reopen must require admin, got %v", err)
	}

	rationale := "  appeal accepted  "
	reopened, err := svc.Reopen(ctx, admin, ReopenRequest{ItemID: item.ID, ExpectedVersion: 2, Rationale: &rationale})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != enums.ModerationStatusPending || reopened.Version != 3 {
		t.Fatalf("unexpected reopened item: status=%s version=%d", reopened.Status, reopened.Version)
	}

	trail, err := svc.GetAuditTrail(ctx, item.ID)
	if err != nil {
		t.Fatalf("get audit trail: %v", err)
	}
	last := trail[len(trail)-1]
	if last.Action != enums.DecisionActionReopen || last.FromStatus != enums.ModerationStatusRejected || last.ToStatus != enums.ModerationStatusPending {
		t.Fatalf("unexpected reopen record: %+v", last)
	}
	if last.Rationale == nil || *last.Rationale != "appeal accepted" {
		t.Fatalf("rationale must be trimmed and kept: %v", last.Rationale)
	}
}

func TestAuditTrailGrowsByOnePerTransition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := submit(t, svc, "audited post")

	steps := []func(version int64) error{
		func(v int64) error {
			_, err := svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: v, Status: enums.ModerationStatusApproved})
			return err
		},
		func(v int64) error {
			_, err := svc.Reopen(ctx, admin, ReopenRequest{ItemID: item.ID, ExpectedVersion: v})
			return err
		},
		func(v int64) error {
			_, err := svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: v, Status: enums.ModerationStatusRejected})
			return err
		},
	}

	for i, step := range steps {
		if err := step(int64(i + 1)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		got, err := svc.GetItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("get item: %v", err)
		}
		if len(got.Trail) != i+1 {
			t.Fatalf("after step %d expected %d records, got %d", i, i+1, len(got.Trail))
		}
		if got.Trail[i].Version != got.Item.Version || got.Trail[i].ToStatus != got.Item.Status {
			t.Fatalf("item and trail disagree: item=%+v record=%+v", got.Item, got.Trail[i])
		}

		// a refused step leaves the trail alone
		_ = step(int64(i + 1))
		trail, err := svc.GetAuditTrail(ctx, item.ID)
		if err != nil {
			t.Fatalf("get audit trail: %v", err)
		}
		if len(trail) != i+1 {
			t.Fatalf("refused step changed trail length to %d", len(trail))
		}
	}
}

func TestDecideCancelledLeavesNoRecord(t *testing.T) {
	svc, _ := newTestService(t)
	item := submit(t, svc, "cancel me")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Decide(ctx, admin, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusApproved})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	got, err := svc.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Item.Status != enums.ModerationStatusPending || len(got.Trail) != 0 {
		t.Fatalf("cancelled decision leaked: status=%s trail=%d", got.Item.Status, len(got.Trail))
	}
}

func TestDecideManyReportsPerItemResults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	items := make([]model.ContentItem, 10)
	for i := range items {
		items[i] = submit(t, svc, "batch post")
	}

	// move the last item ahead so the batch holds a stale version for it
	stale := items[9]
	if _, err := svc.Decide(ctx, admin, DecideRequest{ItemID: stale.ID, ExpectedVersion: 1, Status: enums.ModerationStatusApproved}); err != nil {
		t.Fatalf("approve stale item: %v", err)
	}
	if _, err := svc.Reopen(ctx, admin, ReopenRequest{ItemID: stale.ID, ExpectedVersion: 2}); err != nil {
		t.Fatalf("reopen stale item: %v", err)
	}

	reqs := make([]DecideRequest, 0, len(items))
	for _, item := range items {
		reqs = append(reqs, DecideRequest{ItemID: item.ID, ExpectedVersion: 1, Status: enums.ModerationStatusRejected})
	}

	results, err := svc.DecideMany(ctx, admin, reqs)
	if err != nil {
		t.Fatalf("decide many: %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	var applied, conflicts int
	for i, res := range results {
		if res.ItemID != reqs[i].ItemID {
			t.Fatalf("results must keep request order: %s != %s", res.ItemID, reqs[i].ItemID)
		}
		switch {
		case res.Err == nil:
			applied++
			if res.Item == nil || res.Item.Status != enums.ModerationStatusRejected {
				t.Fatalf("applied result without rejected item: %+v", res)
			}
		case errors.Is(res.Err, ErrConcurrentDecisionConflict):
			conflicts++
			if res.ItemID != stale.ID {
				t.Fatalf("conflict reported for wrong item %s", res.ItemID)
			}
		default:
			t.Fatalf("unexpected result error: %v", res.Err)
		}
	}
	if applied != 9 || conflicts != 1 {
		t.Fatalf("expected 9 applied and 1 conflict, got %d and %d", applied, conflicts)
	}

	got, err := svc.GetItem(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get stale item: %v", err)
	}
	if got.Item.Status != enums.ModerationStatusPending || got.Item.Version != 3 {
		t.Fatalf("stale item must be untouched: %+v", got.Item)
	}
}

func TestDecideManyValidatesBatch(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.DecideMany(context.Background(), admin, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty batch, got %v", err)
	}
	if _, err := svc.DecideMany(context.Background(), Reviewer{}, []DecideRequest{{}}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	tooMany := make([]DecideRequest, svc.cfg.MaxBatchSize+1)
	if _, err := svc.DecideMany(context.Background(), admin, tooMany); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for oversized batch, got %v", err)
	}
}

func submit(t *testing.T, svc *Service, body string) model.ContentItem {
	t.Helper()

	item, err := svc.Submit(context.Background(), NewContent{AuthorID: "author-1", Body: body})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return item
}
