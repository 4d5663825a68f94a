package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	"github.com/ivankudzin/forummod/internal/domain/model"
)

const maxRationaleRunes = 2000

// DecideRequest carries the version the reviewer read. A decision lands only if the item is
// still at that version.
type DecideRequest struct {
	ItemID          uuid.UUID
	ExpectedVersion int64
	Status          enums.ModerationStatus
	Rationale       *string
}

type ReopenRequest struct {
	ItemID          uuid.UUID
	ExpectedVersion int64
	Rationale       *string
}

type DecisionResult struct {
	ItemID uuid.UUID
	Item   *model.ContentItem
	Err    error
}

// Decide moves a pending item to approved or rejected and appends one decision record.
func (s *Service) Decide(ctx context.Context, reviewer Reviewer, req DecideRequest) (model.ContentItem, error) {
	if err := requireAdmin(reviewer); err != nil {
		return model.ContentItem{}, err
	}
	if !req.Status.Valid() {
		return model.ContentItem{}, fmt.Errorf("%w: status must be approved or rejected", ErrValidation)
	}
	if !req.Status.Terminal() {
		return model.ContentItem{}, ErrInvalidTransition
	}
	return s.transition(ctx, reviewer, req.ItemID, req.ExpectedVersion, req.Status, req.Rationale)
}

// Reopen is the only edge out of a terminal status: it puts a decided item back to pending.
func (s *Service) Reopen(ctx context.Context, reviewer Reviewer, req ReopenRequest) (model.ContentItem, error) {
	if err := requireAdmin(reviewer); err != nil {
		return model.ContentItem{}, err
	}
	return s.transition(ctx, reviewer, req.ItemID, req.ExpectedVersion, enums.ModerationStatusPending, req.Rationale)
}

// DecideMany applies Decide to every request independently. A failed item never stops the
// others; each result carries its own error.
func (s *Service) DecideMany(ctx context.Context, reviewer Reviewer, reqs []DecideRequest) ([]DecisionResult, error) {
	if err := requireAdmin(reviewer); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: decisions are required", ErrValidation)
	}
	if len(reqs) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: at most %d decisions per batch", ErrValidation, s.cfg.MaxBatchSize)
	}

	results := make([]DecisionResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchParallelism)
	for i, req := range reqs {
		g.Go(func() error {
			item, err := s.Decide(ctx, reviewer, req)
			results[i] = DecisionResult{ItemID: req.ItemID, Err: err}
			if err == nil {
				results[i].Item = &item
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Service) transition(ctx context.Context, reviewer Reviewer, itemID uuid.UUID, expectedVersion int64, target enums.ModerationStatus, rationale *string) (model.ContentItem, error) {
	action := enums.ActionForTransition(target)
	started := time.Now()
	defer func() {
		decisionDuration.WithLabelValues(string(action)).Observe(time.Since(started).Seconds())
	}()

	item, err := s.applyTransition(ctx, reviewer, itemID, expectedVersion, target, rationale)
	decisionCount.WithLabelValues(string(action), outcomeLabel(err)).Inc()
	if err != nil {
		if errors.Is(err, ErrConcurrentDecisionConflict) {
			s.observe(ctx, "conflict", func(d Dashboard) error { return d.ObserveConflict(ctx) })
		}
		s.log.Info("moderation transition refused",
			zap.String("item_id", itemID.String()),
			zap.String("reviewer_id", reviewer.ID),
			zap.String("action", string(action)),
			zap.Int64("expected_version", expectedVersion),
			zap.Error(err),
		)
		return model.ContentItem{}, err
	}

	s.observe(ctx, "decision", func(d Dashboard) error { return d.ObserveDecision(ctx) })
	switch {
	case action == enums.DecisionActionReopen:
		s.observe(ctx, "reopen", func(d Dashboard) error { return d.ObserveReopen(ctx) })
	case target == enums.ModerationStatusRejected && item.SpamScore() >= s.cfg.SuspectScore:
		s.observe(ctx, "suspect_author", func(d Dashboard) error {
			return d.ObserveSuspectAuthor(ctx, item.AuthorID, item.SpamScore())
		})
	}

	s.log.Info("moderation transition applied",
		zap.String("item_id", itemID.String()),
		zap.String("reviewer_id", reviewer.ID),
		zap.String("action", string(action)),
		zap.String("status", item.Status.String()),
		zap.Int64("version", item.Version),
	)
	return item, nil
}

func (s *Service) applyTransition(ctx context.Context, reviewer Reviewer, itemID uuid.UUID, expectedVersion int64, target enums.ModerationStatus, rationale *string) (model.ContentItem, error) {
	if s.store == nil {
		return model.ContentItem{}, fmt.Errorf("content store is nil")
	}
	if itemID == uuid.Nil {
		return model.ContentItem{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}
	if expectedVersion <= 0 {
		return model.ContentItem{}, fmt.Errorf("%w: expected_version is required", ErrValidation)
	}
	rationale, err := normalizeRationale(rationale)
	if err != nil {
		return model.ContentItem{}, err
	}

	// One decision in flight per item within this process; the store's version check covers
	// the rest.
	if _, busy := s.inflight.LoadOrStore(itemID, struct{}{}); busy {
		return model.ContentItem{}, ErrConcurrentDecisionConflict
	}
	defer s.inflight.Delete(itemID)

	current, err := s.store.Get(ctx, itemID)
	if err != nil {
		return model.ContentItem{}, mapStoreError(err)
	}
	if current.Version != expectedVersion {
		return model.ContentItem{}, ErrConcurrentDecisionConflict
	}
	if !legalTransition(current.Status, target) {
		return model.ContentItem{}, ErrInvalidTransition
	}

	updated, err := s.store.ApplyTransition(ctx, model.Transition{
		ItemID:          itemID,
		ExpectedVersion: expectedVersion,
		FromStatus:      current.Status,
		Record: model.DecisionRecord{
			ID:         s.newID(),
			ItemID:     itemID,
			ReviewerID: strings.TrimSpace(reviewer.ID),
			Action:     enums.ActionForTransition(target),
			FromStatus: current.Status,
			ToStatus:   target,
			Rationale:  rationale,
			DecidedAt:  s.timestamp(),
		},
	})
	if err != nil {
		return model.ContentItem{}, mapStoreError(err)
	}
	return updated, nil
}

func legalTransition(from, to enums.ModerationStatus) bool {
	switch from {
	case enums.ModerationStatusPending:
		return to.Terminal()
	case enums.ModerationStatusApproved, enums.ModerationStatusRejected:
		return to == enums.ModerationStatusPending
	default:
		return false
	}
}

func normalizeRationale(rationale *string) (*string, error) {
	if rationale == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*rationale)
	if value == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(value) > maxRationaleRunes {
		return nil, fmt.Errorf("%w: rationale exceeds %d characters", ErrValidation, maxRationaleRunes)
	}
	return &value, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrConcurrentDecisionConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
