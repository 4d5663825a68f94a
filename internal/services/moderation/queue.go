package moderation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	"github.com/ivankudzin/forummod/internal/domain/model"
	redrepo "github.com/ivankudzin/forummod/internal/repo/redis"
)

const topSuspectAuthors = 10

// QueueFilter selects a page of the review queue. An empty Status means pending.
type QueueFilter struct {
	Status       enums.ModerationStatus
	MinSpamScore *float64
	Cursor       string
	PageSize     int
}

type QueuePage struct {
	Items      []model.ContentSummary
	NextCursor string
}

type QueueSummary struct {
	Counts         map[enums.ModerationStatus]int
	PendingETA     string
	Dashboard      *redrepo.DashboardSummary
	SuspectAuthors []redrepo.SuspectAuthor
}

// ListQueue returns one page in queue order: highest queue score first, then oldest, then by id.
// The cursor is a keyset position, so items inserted after it was issued show up on later pages
// only if they sort after it. Queue scores only rise, so a rescored item never comes back.
func (s *Service) ListQueue(ctx context.Context, filter QueueFilter) (QueuePage, error) {
	if s.store == nil {
		return QueuePage{}, fmt.Errorf("content store is nil")
	}

	status := filter.Status
	if status == enums.ModerationStatusUnrecognized {
		status = enums.ModerationStatusPending
	}
	if !status.Valid() {
		return QueuePage{}, fmt.Errorf("%w: unknown status", ErrValidation)
	}

	if filter.MinSpamScore != nil {
		score := *filter.MinSpamScore
		if math.IsNaN(score) || score < 0 || score > 1 {
			return QueuePage{}, fmt.Errorf("%w: min_spam_score must be within [0,1]", ErrValidation)
		}
	}

	limit := filter.PageSize
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	after, hasCursor, err := decodeCursor(filter.Cursor)
	if err != nil {
		return QueuePage{}, err
	}

	query := model.QueueQuery{
		Status:       status,
		MinSpamScore: filter.MinSpamScore,
		Limit:        limit,
	}
	if hasCursor {
		query.After = &after
	}

	items, err := s.store.ListQueue(ctx, query)
	if err != nil {
		return QueuePage{}, fmt.Errorf("list queue: %w", err)
	}

	page := QueuePage{Items: make([]model.ContentSummary, 0, len(items))}
	for _, item := range items {
		page.Items = append(page.Items, item.Summary())
	}
	if len(items) == limit {
		next, err := encodeCursor(model.PositionOf(items[len(items)-1]))
		if err != nil {
			return QueuePage{}, err
		}
		page.NextCursor = next
	}
	return page, nil
}

// Summary reports queue sizes per status. Dashboard counters are included when Redis is
// attached and reachable.
func (s *Service) Summary(ctx context.Context) (QueueSummary, error) {
	if s.store == nil {
		return QueueSummary{}, fmt.Errorf("content store is nil")
	}

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return QueueSummary{}, fmt.Errorf("count items by status: %w", err)
	}

	out := QueueSummary{
		Counts:     counts,
		PendingETA: ETABucketFromQueueSize(counts[enums.ModerationStatusPending]),
	}
	if s.dashboard == nil {
		return out, nil
	}

	dashboard, err := s.dashboard.Summary(ctx)
	if err != nil {
		s.log.Warn("dashboard summary unavailable", zap.Error(err))
		return out, nil
	}
	out.Dashboard = &dashboard

	suspects, err := s.dashboard.TopSuspectAuthors(ctx, topSuspectAuthors)
	if err != nil {
		s.log.Warn("suspect authors unavailable", zap.Error(err))
		return out, nil
	}
	out.SuspectAuthors = suspects
	return out, nil
}

// ETABucketFromQueueSize is a coarse review-latency hint for the pending backlog.
func ETABucketFromQueueSize(queueSize int) string {
	if queueSize >= 50 {
		return "more_than_hour"
	}
	if queueSize <= 10 {
		return "up_to_10"
	}
	if queueSize <= 20 {
		return "up_to_20"
	}
	if queueSize <= 30 {
		return "up_to_30"
	}
	if queueSize <= 40 {
		return "up_to_40"
	}
	return "up_to_50"
}

func decodeCursor(raw string) (model.QueuePosition, bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return model.QueuePosition{}, false, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return model.QueuePosition{}, false, ErrInvalidCursor
	}

	var cursor model.QueuePosition
	if err := json.Unmarshal(data, &cursor); err != nil {
		return model.QueuePosition{}, false, ErrInvalidCursor
	}
	if cursor.ID == uuid.Nil || cursor.CreatedAt.IsZero() || cursor.QueueScore < 0 || cursor.QueueScore > 1 {
		return model.QueuePosition{}, false, ErrInvalidCursor
	}

	return cursor, true, nil
}

func encodeCursor(cursor model.QueuePosition) (string, error) {
	payload, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("marshal queue cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}
