// Package devbackend is a local stand-in for the ApplyAI backend. It serves
// the same HTTP contract as the hosted service with a pluggable Responder in
// place of the model and an in-memory history in place of the database.
package devbackend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/server"
	"github.com/tjfontaine/applyai-client/internal/tokens"
)

const maxFormMemory = 8 << 20

// Option configures a Backend.
type Option func(*Backend)

// WithResponder replaces the EchoResponder.
func WithResponder(responder Responder) Option {
	return func(b *Backend) {
		if responder != nil {
			b.responder = responder
		}
	}
}

// WithHistory shares a history between backends.
func WithHistory(history *History) Option {
	return func(b *Backend) {
		if history != nil {
			b.history = history
		}
	}
}

// WithAuth enables GET /authorize.
func WithAuth(cfg AuthConfig) Option {
	return func(b *Backend) {
		if len(cfg.SigningKey) > 0 {
			b.auth = &cfg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Backend holds the handlers of the development backend.
type Backend struct {
	responder Responder
	history   *History
	auth      *AuthConfig
	counter   tokens.Counter
	logger    *slog.Logger
}

// New creates a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		responder: EchoResponder{},
		history:   NewHistory(),
		counter:   tokens.NewTiktoken(""),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// History returns the backing history.
func (b *Backend) History() *History {
	return b.history
}

// Mount registers the backend routes on r.
func (b *Backend) Mount(r chi.Router) {
	r.Post("/chat", b.handleChat)
	r.Post("/resumes", b.handleResume)
	r.Get("/chats/{user_id}", b.handleListChats)
	r.Get("/resumes/{user_id}", b.handleListResumes)
	if b.auth != nil {
		r.Get("/authorize", b.handleAuthorize)
	}
}

// NewServer builds a server listening on port with the backend mounted.
func NewServer(port int, logger *slog.Logger, opts ...Option) *server.Server {
	srv := server.New(port, logger)
	New(append([]Option{WithLogger(logger)}, opts...)...).Mount(srv.Router)
	return srv
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}
	server.AddLogField(r.Context(), "user_id", req.UserID)
	b.logTokens(r, "message_tokens", b.counter.Count(req.Message))

	reply, err := b.responder.Reply(r.Context(), req.Message)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to get response from AI model")
		return
	}

	// Anonymous chats are answered but not stored
	if req.UserID != "" {
		b.history.AddChat(req.UserID, req.Message, reply)
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

type tailorResponse struct {
	TailoredResume string `json:"tailored_resume"`
}

func (b *Backend) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}

	baseResume := r.FormValue(domain.FieldBaseResume)
	jobDescription := r.FormValue(domain.FieldJobDescription)
	if baseResume == "" || jobDescription == "" {
		writeError(w, http.StatusUnprocessableEntity, "base_resume and job_description are required")
		return
	}

	userID := r.FormValue(domain.FieldResumeUserID)
	if userID == "" {
		userID = r.FormValue("user_id")
	}
	server.AddLogField(r.Context(), "user_id", userID)
	b.logTokens(r, "prompt_tokens", b.counter.Count(baseResume)+b.counter.Count(jobDescription))

	tailored, err := b.responder.Tailor(r.Context(), baseResume, jobDescription)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to generate resume.")
		return
	}

	if userID != "" {
		b.history.AddResume(userID, baseResume, tailored)
	}

	writeJSON(w, http.StatusOK, tailorResponse{TailoredResume: tailored})
}

func (b *Backend) handleListChats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.history.Chats(chi.URLParam(r, "user_id")))
}

func (b *Backend) handleListResumes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.history.Resumes(chi.URLParam(r, "user_id")))
}

func (b *Backend) logTokens(r *http.Request, key string, n int) {
	b.logger.Debug("request payload", slog.String("request_id", server.GetRequestID(r.Context())), slog.Int(key, n))
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
