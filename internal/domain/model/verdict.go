package model

import "time"

type SpamVerdict struct {
	Score       float64   `json:"score"`
	Tags        []string  `json:"tags"`
	Version     string    `json:"version"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
