package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/ivankudzin/forummod/internal/domain/enums"
)

type ContentItem struct {
	ID          uuid.UUID              `json:"id"`
	AuthorID    string                 `json:"author_id"`
	Body        string                 `json:"body"`
	CreatedAt   time.Time              `json:"created_at"`
	Status      enums.ModerationStatus `json:"status"`
	Version     int64                  `json:"version"`
	ReportCount int                    `json:"report_count"`
	Verdict     *SpamVerdict           `json:"verdict,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`

	// QueueScore is the highest spam score the item has carried. The queue orders on it, so a
	// rescore can move an item ahead of an issued cursor but never behind it.
	QueueScore float64 `json:"-"`
}

// SpamScore is the score of the latest verdict. Items without a verdict score zero.
func (c ContentItem) SpamScore() float64 {
	if c.Verdict == nil {
		return 0
	}
	return c.Verdict.Score
}

// RaiseQueueScore lifts QueueScore to the current spam score if that is higher.
func (c *ContentItem) RaiseQueueScore() {
	c.QueueScore = max(c.QueueScore, c.SpamScore())
}

type ContentSummary struct {
	ID          uuid.UUID              `json:"id"`
	AuthorID    string                 `json:"author_id"`
	Excerpt     string                 `json:"excerpt"`
	CreatedAt   time.Time              `json:"created_at"`
	Status      enums.ModerationStatus `json:"status"`
	Version     int64                  `json:"version"`
	ReportCount int                    `json:"report_count"`
	SpamScore   *float64               `json:"spam_score,omitempty"`
	SignalTags  []string               `json:"signal_tags,omitempty"`
}

const excerptRunes = 140

func (c ContentItem) Summary() ContentSummary {
	summary := ContentSummary{
		ID:          c.ID,
		AuthorID:    c.AuthorID,
		Excerpt:     excerpt(c.Body, excerptRunes),
		CreatedAt:   c.CreatedAt,
		Status:      c.Status,
		Version:     c.Version,
		ReportCount: c.ReportCount,
	}
	if c.Verdict != nil {
		score := c.Verdict.Score
		summary.SpamScore = &score
		summary.SignalTags = append([]string(nil), c.Verdict.Tags...)
	}
	return summary
}

func excerpt(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "…"
}
