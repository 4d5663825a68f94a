package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/forummod/internal/domain/enums"
)

// DecisionRecord is one applied status transition. Records are append-only.
type DecisionRecord struct {
	ID         uuid.UUID              `json:"id"`
	ItemID     uuid.UUID              `json:"item_id"`
	ReviewerID string                 `json:"reviewer_id"`
	Action     enums.DecisionAction   `json:"action"`
	FromStatus enums.ModerationStatus `json:"from_status"`
	ToStatus   enums.ModerationStatus `json:"to_status"`
	Rationale  *string                `json:"rationale,omitempty"`
	Version    int64                  `json:"version"`
	DecidedAt  time.Time              `json:"decided_at"`
}

// Transition is a store-level request to move an item from FromStatus to Record.ToStatus,
// valid only while the item is still at ExpectedVersion.
type Transition struct {
	ItemID          uuid.UUID
	ExpectedVersion int64
	FromStatus      enums.ModerationStatus
	Record          DecisionRecord
}

type ItemWithTrail struct {
	Item  ContentItem      `json:"item"`
	Trail []DecisionRecord `json:"trail"`
}
