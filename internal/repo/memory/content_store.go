// Package memory is a process-local content store. Each item lives behind an atomic pointer to an
// immutable snapshot of the item and its decision trail, so readers never take a lock and always
// see status and trail together. Writers publish a new snapshot with compare-and-swap.
package memory

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	"github.com/ivankudzin/forummod/internal/domain/model"
	"github.com/ivankudzin/forummod/internal/repo"
)

type snapshot struct {
	item  model.ContentItem
	trail []model.DecisionRecord
}

type entry struct {
	current atomic.Pointer[snapshot]
}

type ContentStore struct {
	items *xsync.MapOf[uuid.UUID, *entry]

	// beforeSwap runs between building a transition snapshot and publishing it. Tests use it
	// to interleave writers.
	beforeSwap func()
}

func NewContentStore() *ContentStore {
	return &ContentStore{
		items: xsync.NewMapOf[uuid.UUID, *entry](),
	}
}

func (s *ContentStore) Create(ctx context.Context, item model.ContentItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := cloneItem(item)
	stored.RaiseQueueScore()

	e := &entry{}
	e.current.Store(&snapshot{item: stored})
	if _, loaded := s.items.LoadOrStore(item.ID, e); loaded {
		return repo.ErrItemExists
	}
	return nil
}

func (s *ContentStore) Get(ctx context.Context, id uuid.UUID) (model.ContentItem, error) {
	snap, err := s.load(ctx, id)
	if err != nil {
		return model.ContentItem{}, err
	}
	return cloneItem(snap.item), nil
}

func (s *ContentStore) GetWithTrail(ctx context.Context, id uuid.UUID) (model.ItemWithTrail, error) {
	snap, err := s.load(ctx, id)
	if err != nil {
		return model.ItemWithTrail{}, err
	}
	return model.ItemWithTrail{
		Item:  cloneItem(snap.item),
		Trail: cloneTrail(snap.trail),
	}, nil
}

func (s *ContentStore) ListTrail(ctx context.Context, id uuid.UUID) ([]model.DecisionRecord, error) {
	snap, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return cloneTrail(snap.trail), nil
}

// ApplyTransition publishes the new status and the decision record as one snapshot. It fails
// with repo.ErrVersionConflict only if the item moved away from the expected version or status.
// Losing the swap to a verdict or report update rebuilds the snapshot and tries again.
func (s *ContentStore) ApplyTransition(ctx context.Context, t model.Transition) (model.ContentItem, error) {
	e, ok := s.items.Load(t.ItemID)
	if !ok {
		return model.ContentItem{}, repo.ErrItemNotFound
	}

	for {
		cur := e.current.Load()
		if cur.item.Version != t.ExpectedVersion || cur.item.Status != t.FromStatus {
			return model.ContentItem{}, repo.ErrVersionConflict
		}

		nextItem := cloneItem(cur.item)
		nextItem.Status = t.Record.ToStatus
		nextItem.Version = cur.item.Version + 1
		nextItem.UpdatedAt = t.Record.DecidedAt

		record := t.Record
		record.ItemID = t.ItemID
		record.FromStatus = cur.item.Status
		record.Version = nextItem.Version

		trail := make([]model.DecisionRecord, len(cur.trail), len(cur.trail)+1)
		copy(trail, cur.trail)
		trail = append(trail, record)

		if s.beforeSwap != nil {
			s.beforeSwap()
		}
		if err := ctx.Err(); err != nil {
			return model.ContentItem{}, err
		}
		if e.current.CompareAndSwap(cur, &snapshot{item: nextItem, trail: trail}) {
			return cloneItem(nextItem), nil
		}
	}
}

func (s *ContentStore) SetVerdict(ctx context.Context, id uuid.UUID, verdict model.SpamVerdict) (model.ContentItem, error) {
	return s.update(ctx, id, func(item *model.ContentItem) {
		v := cloneVerdict(verdict)
		item.Verdict = &v
		item.RaiseQueueScore()
	})
}

func (s *ContentStore) IncrementReports(ctx context.Context, id uuid.UUID) (model.ContentItem, error) {
	return s.update(ctx, id, func(item *model.ContentItem) {
		item.ReportCount++
	})
}

func (s *ContentStore) ListQueue(ctx context.Context, q model.QueueQuery) ([]model.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := make([]model.ContentItem, 0)
	s.items.Range(func(_ uuid.UUID, e *entry) bool {
		item := e.current.Load().item
		if item.Status != q.Status {
			return true
		}
		if q.MinSpamScore != nil && item.SpamScore() < *q.MinSpamScore {
			return true
		}
		if q.After != nil && !q.After.Before(model.PositionOf(item)) {
			return true
		}
		matched = append(matched, item)
		return true
	})

	sort.Slice(matched, func(i, j int) bool {
		return model.PositionOf(matched[i]).Before(model.PositionOf(matched[j]))
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]model.ContentItem, 0, len(matched))
	for _, item := range matched {
		out = append(out, cloneItem(item))
	}
	return out, nil
}

func (s *ContentStore) CountByStatus(ctx context.Context) (map[enums.ModerationStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := map[enums.ModerationStatus]int{
		enums.ModerationStatusPending:  0,
		enums.ModerationStatusApproved: 0,
		enums.ModerationStatusRejected: 0,
	}
	s.items.Range(func(_ uuid.UUID, e *entry) bool {
		counts[e.current.Load().item.Status]++
		return true
	})
	return counts, nil
}

func (s *ContentStore) load(ctx context.Context, id uuid.UUID) (*snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.items.Load(id)
	if !ok {
		return nil, repo.ErrItemNotFound
	}
	return e.current.Load(), nil
}

// update retries until its change lands on the latest snapshot. Only non-status fields go
// through here; a transition that loses the swap to it re-checks the version and retries.
func (s *ContentStore) update(ctx context.Context, id uuid.UUID, mutate func(*model.ContentItem)) (model.ContentItem, error) {
	e, ok := s.items.Load(id)
	if !ok {
		return model.ContentItem{}, repo.ErrItemNotFound
	}

	for {
		if err := ctx.Err(); err != nil {
			return model.ContentItem{}, err
		}

		cur := e.current.Load()
		nextItem := cloneItem(cur.item)
		mutate(&nextItem)

		if e.current.CompareAndSwap(cur, &snapshot{item: nextItem, trail: cur.trail}) {
			return cloneItem(nextItem), nil
		}
	}
}

func cloneItem(item model.ContentItem) model.ContentItem {
	out := item
	if item.Verdict != nil {
		v := cloneVerdict(*item.Verdict)
		out.Verdict = &v
	}
	return out
}

func cloneVerdict(v model.SpamVerdict) model.SpamVerdict {
	out := v
	out.Tags = append([]string(nil), v.Tags...)
	return out
}

func cloneTrail(trail []model.DecisionRecord) []model.DecisionRecord {
	out := make([]model.DecisionRecord, len(trail))
	copy(out, trail)
	return out
}
