// Package moderation is the workflow engine behind the admin review API: intake, spam
// evaluation, the pending/approved/rejected state machine and the review queue.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	"github.com/ivankudzin/forummod/internal/domain/model"
	"github.com/ivankudzin/forummod/internal/repo"
	redrepo "github.com/ivankudzin/forummod/internal/repo/redis"
	"github.com/ivankudzin/forummod/internal/services/spam"
)

const (
	defaultMaxBodyRunes     = 20000
	defaultMaxBatchSize     = 100
	defaultBatchParallelism = 8
	defaultPageSize         = 20
	defaultMaxPageSize      = 100
	defaultSuspectScore     = 0.5
	maxReportReasonRunes    = 500
)

type Store interface {
	Create(ctx context.Context, item model.ContentItem) error
	Get(ctx context.Context, id uuid.UUID) (model.ContentItem, error)
	GetWithTrail(ctx context.Context, id uuid.UUID) (model.ItemWithTrail, error)
	ListTrail(ctx context.Context, id uuid.UUID) ([]model.DecisionRecord, error)
	ApplyTransition(ctx context.Context, t model.Transition) (model.ContentItem, error)
	SetVerdict(ctx context.Context, id uuid.UUID, verdict model.SpamVerdict) (model.ContentItem, error)
	IncrementReports(ctx context.Context, id uuid.UUID) (model.ContentItem, error)
	ListQueue(ctx context.Context, q model.QueueQuery) ([]model.ContentItem, error)
	CountByStatus(ctx context.Context) (map[enums.ModerationStatus]int, error)
}

type Evaluator interface {
	Evaluate(item model.ContentItem, signals spam.Signals) model.SpamVerdict
}

type SignalStore interface {
	RecordAuthorPost(ctx context.Context, authorID string) error
	AuthorActivity(ctx context.Context, authorID string) (redrepo.AuthorActivity, error)
	AddReporter(ctx context.Context, itemID uuid.UUID, reporterID string) (bool, error)
	RemoveReporter(ctx context.Context, itemID uuid.UUID, reporterID string) error
}

type Dashboard interface {
	ObserveDecision(ctx context.Context) error
	ObserveConflict(ctx context.Context) error
	ObserveReopen(ctx context.Context) error
	ObserveReport(ctx context.Context) error
	ObserveSuspectAuthor(ctx context.Context, authorID string, weight float64) error
	Summary(ctx context.Context) (redrepo.DashboardSummary, error)
	TopSuspectAuthors(ctx context.Context, limit int64) ([]redrepo.SuspectAuthor, error)
}

type Config struct {
	MaxBodyRunes     int
	MaxBatchSize     int
	BatchParallelism int
	DefaultPageSize  int
	MaxPageSize      int
	// SuspectScore is the minimum spam score at which a rejection counts against the author
	// on the dashboard.
	SuspectScore float64
}

// Reviewer is the acting identity as resolved by the auth collaborator.
type Reviewer struct {
	ID    string
	Admin bool
}

type NewContent struct {
	ID        uuid.UUID
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

type Service struct {
	store     Store
	evaluator Evaluator
	signals   SignalStore
	dashboard Dashboard
	cfg       Config
	log       *zap.Logger
	inflight  *xsync.MapOf[uuid.UUID, struct{}]
	now       func() time.Time
	newID     func() uuid.UUID
}

func NewService(store Store, evaluator Evaluator, cfg Config, log *zap.Logger) *Service {
	if cfg.MaxBodyRunes <= 0 {
		cfg.MaxBodyRunes = defaultMaxBodyRunes
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.BatchParallelism <= 0 {
		cfg.BatchParallelism = defaultBatchParallelism
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	if cfg.SuspectScore <= 0 {
		cfg.SuspectScore = defaultSuspectScore
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		store:     store,
		evaluator: evaluator,
		cfg:       cfg,
		log:       log,
		inflight:  xsync.NewMapOf[uuid.UUID, struct{}](),
		now:       time.Now,
		newID:     uuid.New,
	}
}

func (s *Service) AttachSignals(signals SignalStore) {
	s.signals = signals
}

func (s *Service) AttachDashboard(dashboard Dashboard) {
	s.dashboard = dashboard
}

// Submit accepts a new content item as pending, scores it and stores it with its verdict.
func (s *Service) Submit(ctx context.Context, in NewContent) (model.ContentItem, error) {
	if s.store == nil {
		return model.ContentItem{}, fmt.Errorf("content store is nil")
	}

	authorID := strings.TrimSpace(in.AuthorID)
	if authorID == "" {
		return model.ContentItem{}, fmt.Errorf("%w: author_id is required", ErrValidation)
	}
	if !utf8.ValidString(in.Body) {
		return model.ContentItem{}, fmt.Errorf("%w: body must be valid utf-8", ErrValidation)
	}
	if utf8.RuneCountInString(in.Body) > s.cfg.MaxBodyRunes {
		return model.ContentItem{}, fmt.Errorf("%w: body exceeds %d characters", ErrValidation, s.cfg.MaxBodyRunes)
	}

	now := s.timestamp()
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	id := in.ID
	if id == uuid.Nil {
		id = s.newID()
	}

	item := model.ContentItem{
		ID:        id,
		AuthorID:  authorID,
		Body:      in.Body,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
		Status:    enums.ModerationStatusPending,
		Version:   1,
		UpdatedAt: now,
	}

	// The post being submitted counts toward its author's activity before it is recorded.
	if verdict, ok := s.evaluate(ctx, item, 1); ok {
		item.Verdict = &verdict
	}

	if err := s.store.Create(ctx, item); err != nil {
		if errors.Is(err, repo.ErrItemExists) {
			return model.ContentItem{}, ErrAlreadyExists
		}
		return model.ContentItem{}, fmt.Errorf("create content item: %w", err)
	}
	if s.signals != nil {
		if err := s.signals.RecordAuthorPost(ctx, authorID); err != nil {
			s.log.Warn("record author post failed", zap.String("author_id", authorID), zap.Error(err))
		}
	}

	submittedCount.Inc()
	s.log.Info("content submitted",
		zap.String("item_id", item.ID.String()),
		zap.String("author_id", item.AuthorID),
		zap.Float64("spam_score", item.SpamScore()),
	)
	return item, nil
}

// Report adds one reporter flag to an item and re-scores it. Each reporter counts once per item.
func (s *Service) Report(ctx context.Context, itemID uuid.UUID, reporterID, reason string) (model.ContentItem, error) {
	if s.store == nil {
		return model.ContentItem{}, fmt.Errorf("content store is nil")
	}
	reporterID = strings.TrimSpace(reporterID)
	if reporterID == "" {
		return model.ContentItem{}, ErrUnauthorized
	}
	if itemID == uuid.Nil {
		return model.ContentItem{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}
	if utf8.RuneCountInString(reason) > maxReportReasonRunes {
		return model.ContentItem{}, fmt.Errorf("%w: reason exceeds %d characters", ErrValidation, maxReportReasonRunes)
	}

	if _, err := s.store.Get(ctx, itemID); err != nil {
		return model.ContentItem{}, mapStoreError(err)
	}

	marked := false
	if s.signals != nil {
		added, err := s.signals.AddReporter(ctx, itemID, reporterID)
		switch {
		case err != nil:
			s.log.Warn("reporter dedupe unavailable", zap.String("item_id", itemID.String()), zap.Error(err))
		case !added:
			reportCount.WithLabelValues("duplicate").Inc()
			return model.ContentItem{}, ErrAlreadyReported
		default:
			marked = true
		}
	}

	item, err := s.store.IncrementReports(ctx, itemID)
	if err != nil {
		// The flag was not counted, so the reporter must be able to retry.
		if marked {
			if rmErr := s.signals.RemoveReporter(context.WithoutCancel(ctx), itemID, reporterID); rmErr != nil {
				s.log.Warn("reporter unmark failed",
					zap.String("item_id", itemID.String()),
					zap.String("reporter_id", reporterID),
					zap.Error(rmErr),
				)
			}
		}
		return model.ContentItem{}, mapStoreError(err)
	}
	reportCount.WithLabelValues("accepted").Inc()
	s.observe(ctx, "report", func(d Dashboard) error { return d.ObserveReport(ctx) })

	item, err = s.rescore(ctx, item)
	if err != nil {
		return model.ContentItem{}, err
	}

	s.log.Info("content reported",
		zap.String("item_id", itemID.String()),
		zap.String("reporter_id", reporterID),
		zap.String("reason", strings.TrimSpace(reason)),
		zap.Int("report_count", item.ReportCount),
	)
	return item, nil
}

// Rescore re-runs spam evaluation for one item. The latest verdict replaces the previous one.
func (s *Service) Rescore(ctx context.Context, reviewer Reviewer, itemID uuid.UUID) (model.ContentItem, error) {
	if err := requireAdmin(reviewer); err != nil {
		return model.ContentItem{}, err
	}
	if s.store == nil {
		return model.ContentItem{}, fmt.Errorf("content store is nil")
	}

	item, err := s.store.Get(ctx, itemID)
	if err != nil {
		return model.ContentItem{}, mapStoreError(err)
	}
	return s.rescore(ctx, item)
}

// RescoreStale walks the pending queue and re-scores items whose verdict is missing, produced
// by another evaluator version, or older than staleBefore. It returns how many items it touched.
func (s *Service) RescoreStale(ctx context.Context, staleBefore time.Time, batchSize int) (int, error) {
	if s.store == nil {
		return 0, fmt.Errorf("content store is nil")
	}
	if batchSize <= 0 {
		batchSize = s.cfg.MaxPageSize
	}

	var (
		after   *model.QueuePosition
		touched int
	)
	for {
		items, err := s.store.ListQueue(ctx, model.QueueQuery{
			Status: enums.ModerationStatusPending,
			After:  after,
			Limit:  batchSize,
		})
		if err != nil {
			return touched, fmt.Errorf("list pending items: %w", err)
		}

		for _, item := range items {
			if !verdictStale(item.Verdict, staleBefore) {
				continue
			}
			if _, err := s.rescore(ctx, item); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return touched, err
			}
			touched++
		}

		if len(items) < batchSize {
			return touched, nil
		}
		last := model.PositionOf(items[len(items)-1])
		after = &last
	}
}

func (s *Service) GetItem(ctx context.Context, itemID uuid.UUID) (model.ItemWithTrail, error) {
	if s.store == nil {
		return model.ItemWithTrail{}, fmt.Errorf("content store is nil")
	}
	out, err := s.store.GetWithTrail(ctx, itemID)
	if err != nil {
		return model.ItemWithTrail{}, mapStoreError(err)
	}
	return out, nil
}

func (s *Service) GetAuditTrail(ctx context.Context, itemID uuid.UUID) ([]model.DecisionRecord, error) {
	if s.store == nil {
		return nil, fmt.Errorf("content store is nil")
	}
	trail, err := s.store.ListTrail(ctx, itemID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return trail, nil
}

func (s *Service) rescore(ctx context.Context, item model.ContentItem) (model.ContentItem, error) {
	verdict, ok := s.evaluate(ctx, item, 0)
	if !ok {
		return item, nil
	}
	updated, err := s.store.SetVerdict(ctx, item.ID, verdict)
	if err != nil {
		return model.ContentItem{}, mapStoreError(err)
	}
	return updated, nil
}

// evaluate scores item. extraPosts is added to the author's recorded activity for posts
// not yet recorded.
func (s *Service) evaluate(ctx context.Context, item model.ContentItem, extraPosts int64) (model.SpamVerdict, bool) {
	if s.evaluator == nil {
		return model.SpamVerdict{}, false
	}

	signals := spam.Signals{ReportCount: item.ReportCount}
	if s.signals != nil {
		activity, err := s.signals.AuthorActivity(ctx, item.AuthorID)
		if err != nil {
			s.log.Warn("author activity unavailable", zap.String("author_id", item.AuthorID), zap.Error(err))
		} else {
			signals.AuthorPostsShortWindow = activity.PostsShortWindow + extraPosts
			signals.AuthorPostsLongWindow = activity.PostsLongWindow + extraPosts
		}
	}

	verdict := s.evaluator.Evaluate(item, signals)
	verdict.EvaluatedAt = verdict.EvaluatedAt.UTC().Truncate(time.Microsecond)
	spamScoreHistogram.Observe(verdict.Score)
	return verdict, true
}

// observe forwards to the dashboard when one is attached. Dashboard failures never fail the caller.
func (s *Service) observe(ctx context.Context, what string, fn func(Dashboard) error) {
	if s.dashboard == nil {
		return
	}
	if err := fn(s.dashboard); err != nil {
		s.log.Warn("dashboard update failed", zap.String("event", what), zap.Error(err))
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func requireAdmin(reviewer Reviewer) error {
	if strings.TrimSpace(reviewer.ID) == "" || !reviewer.Admin {
		return ErrUnauthorized
	}
	return nil
}

func verdictStale(v *model.SpamVerdict, staleBefore time.Time) bool {
	if v == nil || v.Version != spam.Version {
		return true
	}
	return v.EvaluatedAt.Before(staleBefore)
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repo.ErrItemNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrVersionConflict):
		return ErrConcurrentDecisionConflict
	default:
		return err
	}
}
