package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	authorPostsShortWindow = 10 * time.Minute
	authorPostsLongWindow  = time.Hour
	reportersTTL           = 30 * 24 * time.Hour
)

// SignalRepo keeps the counters the spam evaluator reads: author posting rate and the set of
// distinct reporters per item.
type SignalRepo struct {
	client *goredis.Client
}

type AuthorActivity struct {
	PostsShortWindow int64
	PostsLongWindow  int64
}

func NewSignalRepo(client *goredis.Client) *SignalRepo {
	return &SignalRepo{client: client}
}

func (r *SignalRepo) RecordAuthorPost(ctx context.Context, authorID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return fmt.Errorf("author id is required")
	}

	for _, window := range []time.Duration{authorPostsShortWindow, authorPostsLongWindow} {
		if err := r.incrementWindow(ctx, authorPostsKey(authorID, window), window); err != nil {
			return err
		}
	}
	return nil
}

func (r *SignalRepo) AuthorActivity(ctx context.Context, authorID string) (AuthorActivity, error) {
	if r.client == nil {
		return AuthorActivity{}, fmt.Errorf("redis client is nil")
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return AuthorActivity{}, nil
	}

	short, err := r.counter(ctx, authorPostsKey(authorID, authorPostsShortWindow))
	if err != nil {
		return AuthorActivity{}, err
	}
	long, err := r.counter(ctx, authorPostsKey(authorID, authorPostsLongWindow))
	if err != nil {
		return AuthorActivity{}, err
	}

	return AuthorActivity{PostsShortWindow: short, PostsLongWindow: long}, nil
}

// AddReporter records reporterID against the item and reports whether it is a new reporter.
func (r *SignalRepo) AddReporter(ctx context.Context, itemID uuid.UUID, reporterID string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	reporterID = strings.TrimSpace(reporterID)
	if reporterID == "" {
		return false, fmt.Errorf("reporter id is required")
	}

	key := reportersKey(itemID)
	pipe := r.client.TxPipeline()
	added := pipe.SAdd(ctx, key, reporterID)
	pipe.Expire(ctx, key, reportersTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("add reporter: %w", err)
	}

	return added.Val() == 1, nil
}

// RemoveReporter drops reporterID from the item's reporter set, so a flag that was never counted
// can be submitted again.
func (r *SignalRepo) RemoveReporter(ctx context.Context, itemID uuid.UUID, reporterID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	reporterID = strings.TrimSpace(reporterID)
	if reporterID == "" {
		return fmt.Errorf("reporter id is required")
	}

	if err := r.client.SRem(ctx, reportersKey(itemID), reporterID).Err(); err != nil {
		return fmt.Errorf("remove reporter: %w", err)
	}
	return nil
}

func (r *SignalRepo) incrementWindow(ctx context.Context, key string, window time.Duration) error {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment signal key: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("set signal key ttl: %w", err)
		}
	}
	return nil
}

func (r *SignalRepo) counter(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Get(ctx, key).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read signal counter %s: %w", key, err)
	}
	return value, nil
}

func authorPostsKey(authorID string, window time.Duration) string {
	return "sig:posts:" + window.String() + ":" + authorID
}

func reportersKey(itemID uuid.UUID) string {
	return "sig:reporters:" + itemID.String()
}
