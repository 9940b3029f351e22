package orchestrator

import (
	"context"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
)

// ChatApology is the assistant entry appended when a chat submission fails.
const ChatApology = "Sorry, I encountered an error. Please try again."

// Chat is the orchestrator of the chat surface. It has no gating; the
// signed-in identity, when present, is sent along so the backend can store
// the exchange.
type Chat struct {
	*machine

	backend ports.ChatBackend
	session ports.SessionReader

	// Guarded by machine.mu.
	log      []domain.MessageLogEntry
	pending  map[uint64]domain.MessageLogEntry
	appended uint64
}

// NewChat creates a chat orchestrator. session may be nil, in which case
// every message is sent anonymously.
func NewChat(backend ports.ChatBackend, session ports.SessionReader, opts ...Option) *Chat {
	return &Chat{
		machine: newMachine(domain.SurfaceChat, opts),
		backend: backend,
		session: session,
		pending: make(map[uint64]domain.MessageLogEntry),
	}
}

// Submit sends message and blocks until the backend resolves. The user entry
// is appended to the log before the request is issued and exactly one
// assistant entry follows on resolution. Backend failures are recovered into
// a Failed state; the only error returned is domain.ErrSuperseded.
func (c *Chat) Submit(ctx context.Context, message string) (domain.SubmissionState, error) {
	var userID string
	if c.session != nil {
		userID = c.session.Current().UserID()
	}
	req := domain.NewChatRequest(message, userID)

	t := c.begin(message)
	reply, err := c.call(ctx, t, req, c.backend.Chat)
	return c.resolve(t, reply, err)
}

// begin is the synchronous phase: new ticket, InFlight, user entry appended.
func (c *Chat) begin(message string) ticket {
	return c.machine.begin(func(ticket) {
		c.log = append(c.log, domain.MessageLogEntry{Role: domain.RoleUser, Content: message})
	})
}

// resolve is the asynchronous phase. Assistant entries land in ticket order:
// an entry whose predecessors have not resolved yet waits in pending.
func (c *Chat) resolve(t ticket, reply string, err error) (domain.SubmissionState, error) {
	entry := domain.MessageLogEntry{Role: domain.RoleAssistant, Content: reply}
	if err != nil {
		entry.Content = ChatApology
	}

	return c.machine.resolve(t, reply, err, func(t ticket) bool {
		c.pending[t.seq] = entry
		return c.flushLocked()
	})
}

func (c *Chat) flushLocked() bool {
	flushed := false
	for {
		entry, ok := c.pending[c.appended+1]
		if !ok {
			return flushed
		}
		delete(c.pending, c.appended+1)
		c.log = append(c.log, entry)
		c.appended++
		flushed = true
	}
}

// Log returns a copy of the conversation so far.
func (c *Chat) Log() []domain.MessageLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.MessageLogEntry, len(c.log))
	copy(out, c.log)
	return out
}
