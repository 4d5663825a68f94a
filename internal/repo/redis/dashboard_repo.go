package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	CounterDecisions1hKey = "cnt:mod:decisions:1h"
	CounterConflicts1hKey = "cnt:mod:conflicts:1h"
	CounterReopens24hKey  = "cnt:mod:reopens:24h"
	CounterReports1hKey   = "cnt:mod:reports:1h"

	SpamAuthors24hKey = "zset:spam:authors:24h"
)

type DashboardRepo struct {
	client *goredis.Client
}

type DashboardSummary struct {
	Decisions1h int64 `json:"decisions_1h"`
	Conflicts1h int64 `json:"conflicts_1h"`
	Reopens24h  int64 `json:"reopens_24h"`
	Reports1h   int64 `json:"reports_1h"`
}

type SuspectAuthor struct {
	AuthorID string  `json:"author_id"`
	Score    float64 `json:"score"`
}

func NewDashboardRepo(client *goredis.Client) *DashboardRepo {
	return &DashboardRepo{client: client}
}

func (r *DashboardRepo) ObserveDecision(ctx context.Context) error {
	return r.incrementCounter(ctx, CounterDecisions1hKey, time.Hour)
}

func (r *DashboardRepo) ObserveConflict(ctx context.Context) error {
	return r.incrementCounter(ctx, CounterConflicts1hKey, time.Hour)
}

func (r *DashboardRepo) ObserveReopen(ctx context.Context) error {
	return r.incrementCounter(ctx, CounterReopens24hKey, 24*time.Hour)
}

func (r *DashboardRepo) ObserveReport(ctx context.Context) error {
	return r.incrementCounter(ctx, CounterReports1hKey, time.Hour)
}

// ObserveSuspectAuthor adds weight to the author's entry in the 24h suspect ranking.
func (r *DashboardRepo) ObserveSuspectAuthor(ctx context.Context, authorID string, weight float64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" || weight <= 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	pipe.ZIncrBy(ctx, SpamAuthors24hKey, weight, authorID)
	pipe.Expire(ctx, SpamAuthors24hKey, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment suspect author %s: %w", authorID, err)
	}
	return nil
}

func (r *DashboardRepo) Summary(ctx context.Context) (DashboardSummary, error) {
	if r.client == nil {
		return DashboardSummary{}, fmt.Errorf("redis client is nil")
	}

	var (
		out DashboardSummary
		err error
	)
	if out.Decisions1h, err = r.counterValue(ctx, CounterDecisions1hKey); err != nil {
		return DashboardSummary{}, err
	}
	if out.Conflicts1h, err = r.counterValue(ctx, CounterConflicts1hKey); err != nil {
		return DashboardSummary{}, err
	}
	if out.Reopens24h, err = r.counterValue(ctx, CounterReopens24hKey); err != nil {
		return DashboardSummary{}, err
	}
	if out.Reports1h, err = r.counterValue(ctx, CounterReports1hKey); err != nil {
		return DashboardSummary{}, err
	}
	return out, nil
}

func (r *DashboardRepo) TopSuspectAuthors(ctx context.Context, limit int64) ([]SuspectAuthor, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	pairs, err := r.client.ZRevRangeWithScores(ctx, SpamAuthors24hKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read top suspect authors: %w", err)
	}

	items := make([]SuspectAuthor, 0, len(pairs))
	for _, pair := range pairs {
		member, ok := pair.Member.(string)
		if !ok {
			member = fmt.Sprint(pair.Member)
		}
		items = append(items, SuspectAuthor{AuthorID: member, Score: pair.Score})
	}
	return items, nil
}

func (r *DashboardRepo) incrementCounter(ctx context.Context, key string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	pipe := r.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment counter %s: %w", key, err)
	}
	return nil
}

func (r *DashboardRepo) counterValue(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Get(ctx, key).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return value, nil
}
