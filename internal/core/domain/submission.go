package domain

import "fmt"

// SurfaceKind identifies a submission surface.
type SurfaceKind string

const (
	SurfaceChat         SurfaceKind = "chat"
	SurfaceResumeTailor SurfaceKind = "resume-tailor"
)

// Payload field names as they appear on the wire.
const (
	FieldMessage        = "message"
	FieldUserID         = "user_id"
	FieldBaseResume     = "base_resume"
	FieldJobDescription = "job_description"
	FieldResumeUserID   = "userId"
)

// SubmissionRequest is a single outbound request built fresh for every
// submit call.
type SubmissionRequest struct {
	Surface SurfaceKind
	Fields  map[string]string
}

// NewChatRequest builds a chat request. userID is omitted when empty.
func NewChatRequest(message, userID string) *SubmissionRequest {
	fields := map[string]string{FieldMessage: message}
	if userID != "" {
		fields[FieldUserID] = userID
	}
	return &SubmissionRequest{Surface: SurfaceChat, Fields: fields}
}

// NewTailorRequest builds a resume-tailoring request. userID is omitted when empty.
func NewTailorRequest(baseResume, jobDescription, userID string) *SubmissionRequest {
	fields := map[string]string{
		FieldBaseResume:     baseResume,
		FieldJobDescription: jobDescription,
	}
	if userID != "" {
		fields[FieldResumeUserID] = userID
	}
	return &SubmissionRequest{Surface: SurfaceResumeTailor, Fields: fields}
}

// Field returns a payload field and whether it was set.
func (r *SubmissionRequest) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Phase is the tag of a SubmissionState.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInFlight
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInFlight:
		return "in_flight"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SubmissionState is the lifecycle state of one orchestrator.
// Result is only meaningful when Phase is PhaseSucceeded and Message only
// when Phase is PhaseFailed.
type SubmissionState struct {
	Phase   Phase
	Result  string
	Message string
}

// Idle returns the initial state.
func Idle() SubmissionState { return SubmissionState{Phase: PhaseIdle} }

// InFlight returns the loading state.
func InFlight() SubmissionState { return SubmissionState{Phase: PhaseInFlight} }

// Succeeded returns a success state carrying the extracted result text.
func Succeeded(result string) SubmissionState {
	return SubmissionState{Phase: PhaseSucceeded, Result: result}
}

// Failed returns a failure state carrying a human-readable message.
func Failed(message string) SubmissionState {
	return SubmissionState{Phase: PhaseFailed, Message: message}
}

// Loading reports whether a request is in flight.
func (s SubmissionState) Loading() bool { return s.Phase == PhaseInFlight }

func (s SubmissionState) String() string {
	switch s.Phase {
	case PhaseSucceeded:
		return fmt.Sprintf("succeeded(%q)", s.Result)
	case PhaseFailed:
		return fmt.Sprintf("failed(%q)", s.Message)
	default:
		return s.Phase.String()
	}
}

// Role is the author of a chat log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageLogEntry is one immutable turn of the chat log.
type MessageLogEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
