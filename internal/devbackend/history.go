package devbackend

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

// storedAssistantRole is the role the backend stores assistant turns under.
const storedAssistantRole domain.Role = "ai"

// History keeps chats and resume tailorings per user, in memory.
type History struct {
	mu      sync.RWMutex
	chats   map[string][]domain.ChatHistory
	resumes map[string][]domain.ResumeHistory
	now     func() time.Time
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		chats:   make(map[string][]domain.ChatHistory),
		resumes: make(map[string][]domain.ResumeHistory),
		now:     time.Now,
	}
}

// AddChat records one exchange for userID.
func (h *History) AddChat(userID, message, reply string) domain.ChatHistory {
	entry := domain.ChatHistory{
		ID: uuid.NewString(),
		Messages: []domain.MessageLogEntry{
			{Role: domain.RoleUser, Content: message},
			{Role: storedAssistantRole, Content: reply},
		},
		Timestamp: h.now().UTC(),
	}

	h.mu.Lock()
	h.chats[userID] = append(h.chats[userID], entry)
	h.mu.Unlock()
	return entry
}

// AddResume records one tailoring for userID.
func (h *History) AddResume(userID, original, tailored string) domain.ResumeHistory {
	entry := domain.ResumeHistory{
		ID:             uuid.NewString(),
		OriginalResume: original,
		TailoredResume: tailored,
		CreatedAt:      h.now().UTC(),
	}

	h.mu.Lock()
	h.resumes[userID] = append(h.resumes[userID], entry)
	h.mu.Unlock()
	return entry
}

// Chats returns the chats of userID, newest first.
func (h *History) Chats(userID string) []domain.ChatHistory {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stored := h.chats[userID]
	out := make([]domain.ChatHistory, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out
}

// Resumes returns the resume tailorings of userID, newest first.
func (h *History) Resumes(userID string) []domain.ResumeHistory {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stored := h.resumes[userID]
	out := make([]domain.ResumeHistory, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out
}
