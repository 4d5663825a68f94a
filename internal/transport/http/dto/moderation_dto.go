package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/forummod/internal/domain/model"
	redrepo "github.com/ivankudzin/forummod/internal/repo/redis"
)

type QueueResponse struct {
	Items      []model.ContentSummary `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type ItemResponse struct {
	Item  model.ContentItem      `json:"item"`
	Trail []model.DecisionRecord `json:"trail"`
}

type AuditTrailResponse struct {
	ItemID  uuid.UUID              `json:"item_id"`
	Records []model.DecisionRecord `json:"records"`
}

// DecisionRequest.Status stays a raw string so unknown values reach the status classifier
// instead of failing JSON decoding.
type DecisionRequest struct {
	Status          *string `json:"status"`
	ExpectedVersion int64   `json:"expected_version"`
	Rationale       *string `json:"rationale,omitempty"`
}

type ReopenRequest struct {
	ExpectedVersion int64   `json:"expected_version"`
	Rationale       *string `json:"rationale,omitempty"`
}

type BulkDecisionItem struct {
	ItemID          string  `json:"item_id"`
	Status          *string `json:"status"`
	ExpectedVersion int64   `json:"expected_version"`
	Rationale       *string `json:"rationale,omitempty"`
}

type BulkDecisionRequest struct {
	Decisions []BulkDecisionItem `json:"decisions"`
}

type BulkDecisionResult struct {
	ItemID string             `json:"item_id"`
	OK     bool               `json:"ok"`
	Item   *model.ContentItem `json:"item,omitempty"`
	Error  *ResultError       `json:"error,omitempty"`
}

type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BulkDecisionResponse struct {
	Results []BulkDecisionResult `json:"results"`
	Applied int                  `json:"applied"`
	Failed  int                  `json:"failed"`
}

type SummaryResponse struct {
	Counts         map[string]int            `json:"counts"`
	PendingETA     string                    `json:"pending_eta_bucket"`
	Dashboard      *redrepo.DashboardSummary `json:"dashboard,omitempty"`
	SuspectAuthors []redrepo.SuspectAuthor   `json:"suspect_authors,omitempty"`
}

type ArchiveResponse struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Version    int64     `json:"version"`
	Records    int       `json:"records"`
	ArchivedAt time.Time `json:"archived_at"`
}
