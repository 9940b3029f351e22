package orchestrator

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
)

// TailorInput is the resume-tailoring form.
type TailorInput struct {
	BaseResume     string
	JobDescription string
}

// Resume is the orchestrator of the resume-tailoring surface. It requires a
// signed-in identity.
type Resume struct {
	*machine

	backend ports.ResumeBackend
	session ports.SessionReader
}

// NewResume creates a resume-tailoring orchestrator. With a nil session
// every submission is rejected with domain.ErrSignInRequired.
func NewResume(backend ports.ResumeBackend, session ports.SessionReader, opts ...Option) *Resume {
	return &Resume{
		machine: newMachine(domain.SurfaceResumeTailor, opts),
		backend: backend,
		session: session,
	}
}

// Submit tailors in.BaseResume to in.JobDescription and blocks until the
// backend resolves. Without a signed-in identity it returns
// domain.ErrSignInRequired, issues no request and leaves the state as it
// was. Backend failures are recovered into a Failed state.
func (r *Resume) Submit(ctx context.Context, in TailorInput) (domain.SubmissionState, error) {
	var session domain.Session
	if r.session != nil {
		session = r.session.Current()
	}
	if session.Identity == nil {
		r.logger.Debug("resume submission rejected without identity",
			slog.Bool("initializing", session.IsInitializing))
		return r.State(), domain.ErrSignInRequired
	}

	req := domain.NewTailorRequest(in.BaseResume, in.JobDescription, session.UserID())

	t := r.begin(nil)
	tailored, err := r.call(ctx, t, req, r.backend.TailorResume)
	return r.resolve(t, tailored, err, nil)
}
