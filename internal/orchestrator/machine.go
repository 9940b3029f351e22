// Package orchestrator drives submissions from the chat and resume-tailoring
// surfaces through the backend and exposes their lifecycle state.
//
// Each surface owns one orchestrator. A submission moves the orchestrator
// through Idle -> InFlight -> Succeeded | Failed and may be re-submitted from
// any state. Submissions are numbered; only the resolution of the most
// recently issued submission is applied, earlier ones are discarded.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/pkg/watch"
	"github.com/tjfontaine/applyai-client/internal/telemetry"
	"github.com/tjfontaine/applyai-client/internal/tokens"
)

// Option configures an orchestrator.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	counter tokens.Counter
	tracer  trace.Tracer
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTokenCounter sets the counter used to annotate submissions with their
// estimated payload size.
func WithTokenCounter(counter tokens.Counter) Option {
	return func(o *options) {
		if counter != nil {
			o.counter = counter
		}
	}
}

// WithTracer sets the tracer. The global provider is used by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  slog.Default(),
		counter: tokens.NewTiktoken(""),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(telemetry.TracerName)
	}
	return o
}

// ticket identifies one issued submission.
type ticket struct {
	seq uint64
}

// backendCall is the shape shared by every backend operation a surface uses.
type backendCall func(ctx context.Context, req *domain.SubmissionRequest) (string, error)

// machine is the state shared by every surface: the sequence counter, the
// current state and its watchers.
type machine struct {
	surface domain.SurfaceKind
	options

	mu       sync.Mutex
	seq      uint64
	state    domain.SubmissionState
	watchers watch.List[domain.SubmissionState]
}

func newMachine(surface domain.SurfaceKind, opts []Option) *machine {
	return &machine{
		surface: surface,
		options: buildOptions(opts),
		state:   domain.Idle(),
	}
}

// begin issues a new ticket and moves to InFlight, discarding any previous
// result. locked, when set, runs under the same lock so surface-specific
// bookkeeping is atomic with the transition. Watchers observe InFlight before
// begin returns unless another goroutine is mid-delivery, in which case that
// goroutine delivers it in order.
func (m *machine) begin(locked func(t ticket)) ticket {
	m.mu.Lock()
	m.seq++
	t := ticket{seq: m.seq}
	m.state = domain.InFlight()
	if locked != nil {
		locked(t)
	}
	m.watchers.Publish(m.state)
	m.mu.Unlock()

	m.watchers.Flush()
	return t
}

// resolve applies the outcome of t. If a later ticket has been issued the
// outcome is discarded and domain.ErrSuperseded is returned with the current
// state. locked runs under the lock in both cases and reports whether it
// changed anything watchers should see.
func (m *machine) resolve(t ticket, result string, err error, locked func(t ticket) bool) (domain.SubmissionState, error) {
	m.mu.Lock()
	changed := false
	if locked != nil {
		changed = locked(t)
	}
	superseded := t.seq != m.seq
	if !superseded {
		if err != nil {
			m.state = domain.Failed(domain.FailureMessage(err))
		} else {
			m.state = domain.Succeeded(result)
		}
		changed = true
	}
	state := m.state
	if changed {
		m.watchers.Publish(state)
	}
	m.mu.Unlock()

	m.watchers.Flush()
	if superseded {
		return state, domain.ErrSuperseded
	}
	return state, nil
}

// call runs the backend operation for t inside a span.
func (m *machine) call(ctx context.Context, t ticket, req *domain.SubmissionRequest, fn backendCall) (string, error) {
	payloadTokens := m.counter.CountRequest(req)

	ctx, span := m.tracer.Start(ctx, "orchestrator.submit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("applyai.surface", string(m.surface)),
			attribute.Int64("applyai.sequence", int64(t.seq)),
			attribute.Int("applyai.payload_tokens", payloadTokens),
		))
	defer span.End()

	m.logger.Debug("submission started",
		slog.String("surface", string(m.surface)),
		slog.Int64("sequence", int64(t.seq)),
		slog.Int("payload_tokens", payloadTokens))

	result, err := fn(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.FailureMessage(err))
		m.logger.Warn("submission failed",
			slog.String("surface", string(m.surface)),
			slog.Int64("sequence", int64(t.seq)),
			slog.String("error", err.Error()))
		return "", err
	}

	span.SetAttributes(attribute.Int("applyai.result_tokens", m.counter.Count(result)))
	if m.latest() != t.seq {
		span.SetAttributes(attribute.Bool("applyai.superseded", true))
		m.logger.Debug("submission superseded",
			slog.String("surface", string(m.surface)),
			slog.Int64("sequence", int64(t.seq)))
	}
	return result, nil
}

func (m *machine) latest() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// State returns the current state.
func (m *machine) State() domain.SubmissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch calls fn with a snapshot after every change, in the order the
// changes happened. The returned function stops notifications.
func (m *machine) Watch(fn func(domain.SubmissionState)) (cancel func()) {
	return m.watchers.Add(fn)
}
