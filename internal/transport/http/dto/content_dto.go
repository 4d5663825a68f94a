package dto

import "time"

type SubmitContentRequest struct {
	ID        *string    `json:"id,omitempty"`
	AuthorID  string     `json:"author_id"`
	Body      string     `json:"body"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type ReportRequest struct {
	Reason string `json:"reason"`
}

type ReportResponse struct {
	OK          bool `json:"ok"`
	ReportCount int  `json:"report_count"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Storage string            `json:"storage"`
	Checks  map[string]string `json:"checks,omitempty"`
}
