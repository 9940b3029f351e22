package ports

import (
	"context"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

// ChatBackend sends chat messages to the backend.
type ChatBackend interface {
	// Chat posts req and returns the reply text.
	Chat(ctx context.Context, req *domain.SubmissionRequest) (string, error)
}

// ResumeBackend tailors resumes.
type ResumeBackend interface {
	// TailorResume posts req and returns the tailored resume text.
	TailorResume(ctx context.Context, req *domain.SubmissionRequest) (string, error)
}

// HistoryBackend reads a user's stored history.
type HistoryBackend interface {
	ListChats(ctx context.Context, userID string) ([]domain.ChatHistory, error)
	ListResumes(ctx context.Context, userID string) ([]domain.ResumeHistory, error)
}

// Backend is the full backend surface.
type Backend interface {
	ChatBackend
	ResumeBackend
	HistoryBackend
}
