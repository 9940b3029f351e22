package domain

import "time"

// ChatHistory is one stored chat exchange returned by the backend.
type ChatHistory struct {
	ID        string            `json:"id"`
	Messages  []MessageLogEntry `json:"messages"`
	Timestamp time.Time         `json:"timestamp"`
}

// ResumeHistory is one stored resume tailoring returned by the backend.
type ResumeHistory struct {
	ID             string    `json:"id"`
	OriginalResume string    `json:"originalResume"`
	TailoredResume string    `json:"tailoredResume"`
	CreatedAt      time.Time `json:"createdAt"`
}
