package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/forummod/internal/domain/enums"
)

// QueuePosition is the keyset position of an item in queue order:
// queue score descending, then created_at ascending, then id ascending.
type QueuePosition struct {
	QueueScore float64   `json:"s"`
	CreatedAt  time.Time `json:"t"`
	ID         uuid.UUID `json:"i"`
}

func PositionOf(item ContentItem) QueuePosition {
	return QueuePosition{
		QueueScore: item.QueueScore,
		CreatedAt:  item.CreatedAt,
		ID:         item.ID,
	}
}

// Before reports whether p sorts strictly before other in queue order.
func (p QueuePosition) Before(other QueuePosition) bool {
	if p.QueueScore != other.QueueScore {
		return p.QueueScore > other.QueueScore
	}
	if !p.CreatedAt.Equal(other.CreatedAt) {
		return p.CreatedAt.Before(other.CreatedAt)
	}
	return p.ID.String() < other.ID.String()
}

type QueueQuery struct {
	Status       enums.ModerationStatus
	MinSpamScore *float64
	After        *QueuePosition
	Limit        int
}
