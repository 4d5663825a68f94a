package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	"github.com/ivankudzin/forummod/internal/domain/model"
	"github.com/ivankudzin/forummod/internal/repo"
)

const uniqueViolation = "23505"

const contentColumns = `id, author_id, body, status, version, report_count, spam_score, spam_tags, verdict_version, verdict_at, created_at, updated_at, queue_score`

const decisionColumns = `id, item_id, reviewer_id, action, from_status, to_status, rationale, version, decided_at`

type ContentRepo struct {
	pool *pgxpool.Pool
}

type rowScanner interface {
	Scan(dest ...any) error
}

func NewContentRepo(pool *pgxpool.Pool) *ContentRepo {
	return &ContentRepo{pool: pool}
}

func (r *ContentRepo) Create(ctx context.Context, item model.ContentItem) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	score, tags, verdictVersion, verdictAt := verdictColumns(item.Verdict)
	_, err := r.pool.Exec(ctx, `
INSERT INTO content_items (
	id,
	author_id,
	body,
	status,
	version,
	report_count,
	spam_score,
	spam_tags,
	verdict_version,
	verdict_at,
	created_at,
	updated_at,
	queue_score
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, item.ID, item.AuthorID, item.Body, string(item.Status), item.Version, item.ReportCount,
		score, tags, verdictVersion, verdictAt, item.CreatedAt, item.UpdatedAt, max(item.QueueScore, item.SpamScore()))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repo.ErrItemExists
		}
		return fmt.Errorf("insert content item: %w", err)
	}

	return nil
}

func (r *ContentRepo) Get(ctx context.Context, id uuid.UUID) (model.ContentItem, error) {
	if r.pool == nil {
		return model.ContentItem{}, fmt.Errorf("postgres pool is nil")
	}

	return scanContent(r.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = $1`, id))
}

// GetWithTrail reads the item and its trail from one repeatable-read snapshot.
func (r *ContentRepo) GetWithTrail(ctx context.Context, id uuid.UUID) (model.ItemWithTrail, error) {
	var out model.ItemWithTrail
	err := WithTx(ctx, r.pool, snapshotTxOptions, func(ctx context.Context, tx pgx.Tx) error {
		item, err := scanContent(tx.QueryRow(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = $1`, id))
		if err != nil {
			return err
		}
		trail, err := queryTrail(ctx, tx, id)
		if err != nil {
			return err
		}
		out = model.ItemWithTrail{Item: item, Trail: trail}
		return nil
	})
	if err != nil {
		return model.ItemWithTrail{}, err
	}
	return out, nil
}

func (r *ContentRepo) ListTrail(ctx context.Context, id uuid.UUID) ([]model.DecisionRecord, error) {
	snapshot, err := r.GetWithTrail(ctx, id)
	if err != nil {
		return nil, err
	}
	return snapshot.Trail, nil
}

// ApplyTransition updates status and appends the decision record in one transaction. The update
// is conditional on the expected version and status; a miss is reported as a version conflict.
func (r *ContentRepo) ApplyTransition(ctx context.Context, t model.Transition) (model.ContentItem, error) {
	var updated model.ContentItem
	err := WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		item, err := scanContent(tx.QueryRow(ctx, `
UPDATE content_items
SET
	status = $4,
	version = version + 1,
	updated_at = $5
WHERE id = $1
  AND version = $2
  AND status = $3
RETURNING `+contentColumns,
			t.ItemID, t.ExpectedVersion, string(t.FromStatus), string(t.Record.ToStatus), t.Record.DecidedAt))
		if err != nil {
			if !errors.Is(err, repo.ErrItemNotFound) {
				return err
			}
			return r.classifyMiss(ctx, tx, t.ItemID)
		}

		record := t.Record
		record.ItemID = t.ItemID
		record.FromStatus = t.FromStatus
		record.Version = item.Version
		if _, err := tx.Exec(ctx, `
INSERT INTO decision_records (`+decisionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, record.ID, record.ItemID, record.ReviewerID, string(record.Action), string(record.FromStatus),
			string(record.ToStatus), record.Rationale, record.Version, record.DecidedAt); err != nil {
			return fmt.Errorf("insert decision record: %w", err)
		}

		updated = item
		return nil
	})
	if err != nil {
		return model.ContentItem{}, err
	}
	return updated, nil
}

func (r *ContentRepo) SetVerdict(ctx context.Context, id uuid.UUID, verdict model.SpamVerdict) (model.ContentItem, error) {
	if r.pool == nil {
		return model.ContentItem{}, fmt.Errorf("postgres pool is nil")
	}

	score, tags, version, at := verdictColumns(&verdict)
	return scanContent(r.pool.QueryRow(ctx, `
UPDATE content_items
SET
	spam_score = $2,
	spam_tags = $3,
	verdict_version = $4,
	verdict_at = $5,
	queue_score = GREATEST(queue_score, COALESCE($2, 0))
WHERE id = $1
RETURNING `+contentColumns, id, score, tags, version, at))
}

func (r *ContentRepo) IncrementReports(ctx context.Context, id uuid.UUID) (model.ContentItem, error) {
	if r.pool == nil {
		return model.ContentItem{}, fmt.Errorf("postgres pool is nil")
	}

	return scanContent(r.pool.QueryRow(ctx, `
UPDATE content_items
SET report_count = report_count + 1
WHERE id = $1
RETURNING `+contentColumns, id))
}

// ListQueue pages through items in queue order using the keyset in q.After. The keyset is on
// queue_score, which SetVerdict only raises, so a rescored item never re-enters a walked range.
func (r *ContentRepo) ListQueue(ctx context.Context, q model.QueueQuery) ([]model.ContentItem, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	var (
		hasCursor   bool
		afterScore  float64
		afterTime   time.Time
		afterID     uuid.UUID
		minSpamArgs *float64
	)
	if q.After != nil {
		hasCursor = true
		afterScore = q.After.QueueScore
		afterTime = q.After.CreatedAt
		afterID = q.After.ID
	}
	if q.MinSpamScore != nil {
		v := *q.MinSpamScore
		minSpamArgs = &v
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+contentColumns+`
FROM content_items
WHERE status = $1
  AND ($2::double precision IS NULL OR COALESCE(spam_score, 0) >= $2)
  AND (
	NOT $3::boolean
	OR queue_score < $4
	OR (queue_score = $4 AND created_at > $5)
	OR (queue_score = $4 AND created_at = $5 AND id > $6)
  )
ORDER BY queue_score DESC, created_at ASC, id ASC
LIMIT $7
`, string(q.Status), minSpamArgs, hasCursor, afterScore, afterTime, afterID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list moderation queue: %w", err)
	}
	defer rows.Close()

	items := make([]model.ContentItem, 0, q.Limit)
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation queue: %w", err)
	}

	return items, nil
}

func (r *ContentRepo) CountByStatus(ctx context.Context) (map[enums.ModerationStatus]int, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT status, COUNT(*)
FROM content_items
GROUP BY status
`)
	if err != nil {
		return nil, fmt.Errorf("count content items by status: %w", err)
	}
	defer rows.Close()

	counts := map[enums.ModerationStatus]int{
		enums.ModerationStatusPending:  0,
		enums.ModerationStatusApproved: 0,
		enums.ModerationStatusRejected: 0,
	}
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		if status, ok := enums.ClassifyString(raw); ok {
			counts[status] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}

func (r *ContentRepo) classifyMiss(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content_items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check content item: %w", err)
	}
	if !exists {
		return repo.ErrItemNotFound
	}
	return repo.ErrVersionConflict
}

func queryTrail(ctx context.Context, tx pgx.Tx, id uuid.UUID) ([]model.DecisionRecord, error) {
	rows, err := tx.Query(ctx, `
SELECT `+decisionColumns+`
FROM decision_records
WHERE item_id = $1
ORDER BY version ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list decision records: %w", err)
	}
	defer rows.Close()

	trail := make([]model.DecisionRecord, 0)
	for rows.Next() {
		var (
			record     model.DecisionRecord
			action     string
			fromStatus string
			toStatus   string
		)
		if err := rows.Scan(
			&record.ID,
			&record.ItemID,
			&record.ReviewerID,
			&action,
			&fromStatus,
			&toStatus,
			&record.Rationale,
			&record.Version,
			&record.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		record.Action = enums.DecisionAction(action)
		record.FromStatus, _ = enums.ClassifyString(fromStatus)
		record.ToStatus, _ = enums.ClassifyString(toStatus)
		record.DecidedAt = record.DecidedAt.UTC()
		trail = append(trail, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision records: %w", err)
	}

	return trail, nil
}

func scanContent(row rowScanner) (model.ContentItem, error) {
	var (
		item           model.ContentItem
		status         string
		spamScore      *float64
		spamTags       []string
		verdictVersion *string
		verdictAt      *time.Time
	)
	err := row.Scan(
		&item.ID,
		&item.AuthorID,
		&item.Body,
		&status,
		&item.Version,
		&item.ReportCount,
		&spamScore,
		&spamTags,
		&verdictVersion,
		&verdictAt,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.QueueScore,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ContentItem{}, repo.ErrItemNotFound
		}
		return model.ContentItem{}, fmt.Errorf("scan content item: %w", err)
	}

	classified, ok := enums.ClassifyString(status)
	if !ok {
		classified = enums.ModerationStatusPending
	}
	item.Status = classified
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()

	if spamScore != nil {
		verdict := model.SpamVerdict{
			Score: *spamScore,
			Tags:  spamTags,
		}
		if verdictVersion != nil {
			verdict.Version = *verdictVersion
		}
		if verdictAt != nil {
			verdict.EvaluatedAt = verdictAt.UTC()
		}
		item.Verdict = &verdict
	}

	return item, nil
}

func verdictColumns(v *model.SpamVerdict) (*float64, []string, *string, *time.Time) {
	if v == nil {
		return nil, []string{}, nil, nil
	}
	score := v.Score
	version := v.Version
	at := v.EvaluatedAt
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	return &score, tags, &version, &at
}
