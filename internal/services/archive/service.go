// Package archive exports decision trails to object storage for long-term retention.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/forummod/internal/domain/model"
)

const defaultURLTTL = 15 * time.Minute

var ErrUnavailable = errors.New("audit archive is not configured")

type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type TrailSource interface {
	GetItem(ctx context.Context, itemID uuid.UUID) (model.ItemWithTrail, error)
}

type Result struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Version    int64     `json:"version"`
	Records    int       `json:"records"`
	ArchivedAt time.Time `json:"archived_at"`
}

type document struct {
	ArchivedAt time.Time              `json:"archived_at"`
	ArchivedBy string                 `json:"archived_by"`
	Item       model.ContentItem      `json:"item"`
	Trail      []model.DecisionRecord `json:"trail"`
}

type Service struct {
	objects ObjectStore
	source  TrailSource
	urlTTL  time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewService accepts a nil object store; every archive call then fails with ErrUnavailable.
func NewService(objects ObjectStore, source TrailSource, urlTTL time.Duration, log *zap.Logger) *Service {
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		objects: objects,
		source:  source,
		urlTTL:  urlTTL,
		log:     log,
		now:     time.Now,
	}
}

// ArchiveAuditTrail uploads the item with its full trail under audit/<item>/<version>.json and
// returns a presigned download link. Archiving never changes moderation state.
func (s *Service) ArchiveAuditTrail(ctx context.Context, itemID uuid.UUID, archivedBy string) (Result, error) {
	if s.objects == nil {
		return Result{}, ErrUnavailable
	}
	if s.source == nil {
		return Result{}, fmt.Errorf("trail source is nil")
	}

	snapshot, err := s.source.GetItem(ctx, itemID)
	if err != nil {
		return Result{}, err
	}

	if err := s.objects.EnsureBucket(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	archivedAt := s.now().UTC()
	payload, err := json.Marshal(document{
		ArchivedAt: archivedAt,
		ArchivedBy: archivedBy,
		Item:       snapshot.Item,
		Trail:      snapshot.Trail,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal audit trail: %w", err)
	}

	key := ObjectKey(itemID, snapshot.Item.Version)
	if err := s.objects.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	url, err := s.objects.PresignGet(ctx, key, s.urlTTL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.log.Info("audit trail archived",
		zap.String("item_id", itemID.String()),
		zap.String("key", key),
		zap.Int("records", len(snapshot.Trail)),
	)

	return Result{
		Key:        key,
		URL:        url,
		Version:    snapshot.Item.Version,
		Records:    len(snapshot.Trail),
		ArchivedAt: archivedAt,
	}, nil
}

func ObjectKey(itemID uuid.UUID, version int64) string {
	return fmt.Sprintf("audit/%s/%d.json", itemID, version)
}
