package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/applyai-client/internal/backend"
	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
	"github.com/tjfontaine/applyai-client/internal/identity/memory"
	"github.com/tjfontaine/applyai-client/internal/session"
	"github.com/tjfontaine/applyai-client/internal/tokens"
)

var quiet = []Option{
	WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	WithTokenCounter(tokens.NewEstimator()),
}

type fixedSession domain.Session

func (s fixedSession) Current() domain.Session { return domain.Session(s) }

func signedIn(id string) fixedSession {
	return fixedSession{Identity: &domain.Identity{ID: id}}
}

type outcome struct {
	text string
	err  error
}

// pendingCall is one backend call the test resolves by hand.
type pendingCall struct {
	req   *domain.SubmissionRequest
	reply chan outcome
}

func (p *pendingCall) respond(text string, err error) {
	p.reply <- outcome{text: text, err: err}
}

// manualBackend blocks every call until the test responds to it.
type manualBackend struct {
	calls chan *pendingCall
}

func newManualBackend() *manualBackend {
	return &manualBackend{calls: make(chan *pendingCall, 16)}
}

func (b *manualBackend) wait(ctx context.Context, req *domain.SubmissionRequest) (string, error) {
	call := &pendingCall{req: req, reply: make(chan outcome, 1)}
	b.calls <- call
	select {
	case out := <-call.reply:
		return out.text, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *manualBackend) Chat(ctx context.Context, req *domain.SubmissionRequest) (string, error) {
	return b.wait(ctx, req)
}

func (b *manualBackend) TailorResume(ctx context.Context, req *domain.SubmissionRequest) (string, error) {
	return b.wait(ctx, req)
}

func (b *manualBackend) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case call := <-b.calls:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for backend call")
		return nil
	}
}

type submitResult struct {
	state domain.SubmissionState
	err   error
}

func await(t *testing.T, ch <-chan submitResult) submitResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Submit")
		return submitResult{}
	}
}

// countingBackend records calls and answers immediately.
type countingBackend struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (b *countingBackend) TailorResume(ctx context.Context, req *domain.SubmissionRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.reply, b.err
}

func TestMachine_BeginIsSynchronous(t *testing.T) {
	m := newMachine(domain.SurfaceResumeTailor, quiet)

	var seen []domain.SubmissionState
	m.Watch(func(s domain.SubmissionState) { seen = append(seen, s) })

	if got := m.State(); got.Phase != domain.PhaseIdle {
		t.Fatalf("initial State() = %v, want idle", got)
	}

	t1 := m.begin(nil)
	if got := m.State(); got.Phase != domain.PhaseInFlight {
		t.Errorf("State() after begin = %v, want in_flight", got)
	}
	if _, err := m.resolve(t1, "first", nil, nil); err != nil {
		t.Fatalf("resolve() error = %v", err)
	}

	// Re-entering from a terminal state clears the previous result
	m.begin(nil)
	got := m.State()
	if got.Phase != domain.PhaseInFlight || got.Result != "" {
		t.Errorf("State() after second begin = %+v, want in_flight with no result", got)
	}

	if len(seen) != 3 {
		t.Fatalf("watch notifications = %d, want 3", len(seen))
	}
	if seen[0].Phase != domain.PhaseInFlight || seen[1] != domain.Succeeded("first") || seen[2].Phase != domain.PhaseInFlight {
		t.Errorf("notifications = %v", seen)
	}
}

func TestMachine_Resolve(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
		want domain.SubmissionState
	}{
		{
			name: "success",
			text: "X",
			want: domain.Succeeded("X"),
		},
		{
			name: "protocol failure",
			err:  domain.NewAPIError(500, "500 Internal Server Error", ""),
			want: domain.Failed("API Error: 500 Internal Server Error"),
		},
		{
			name: "transport failure",
			err:  &domain.TransportError{Err: errors.New("dial tcp: connection refused")},
			want: domain.Failed("network error: failed to reach the server"),
		},
		{
			name: "malformed",
			err:  domain.ErrMalformedResponse,
			want: domain.Failed("malformed response"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(domain.SurfaceResumeTailor, quiet)
			ticket := m.begin(nil)
			got, err := m.resolve(ticket, tt.text, tt.err, nil)
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("resolve() = %v, want %v", got, tt.want)
			}
			if m.State() != tt.want {
				t.Errorf("State() = %v, want %v", m.State(), tt.want)
			}
		})
	}
}

func TestMachine_LastIssuedWins(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 50; round++ {
		m := newMachine(domain.SurfaceResumeTailor, quiet)

		n := 1 + rng.Intn(6)
		tickets := make([]ticket, n)
		for i := range tickets {
			tickets[i] = m.begin(nil)
		}

		for _, i := range rng.Perm(n) {
			var err error
			if i%2 == 1 {
				err = domain.NewAPIError(500, "500 Internal Server Error", strconv.Itoa(i))
			}
			_, resolveErr := m.resolve(tickets[i], strconv.Itoa(i), err, nil)
			if i == n-1 && resolveErr != nil {
				t.Fatalf("round %d: resolve(latest) error = %v", round, resolveErr)
			}
			if i != n-1 && !errors.Is(resolveErr, domain.ErrSuperseded) {
				t.Fatalf("round %d: resolve(%d) error = %v, want ErrSuperseded", round, i, resolveErr)
			}
		}

		want := domain.Succeeded(strconv.Itoa(n - 1))
		if (n-1)%2 == 1 {
			want = domain.Failed("API Error: 500 Internal Server Error: " + strconv.Itoa(n-1))
		}
		if got := m.State(); got != want {
			t.Fatalf("round %d (n=%d): State() = %v, want %v", round, n, got, want)
		}
	}
}

func TestMachine_WatchersSeeStatesInOrder(t *testing.T) {
	m := newMachine(domain.SurfaceResumeTailor, quiet)

	var (
		mu      sync.Mutex
		seen    []domain.SubmissionState
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	m.Watch(func(s domain.SubmissionState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		if s == domain.Succeeded("A") {
			close(entered)
			<-release
		}
	})

	tA := m.begin(nil)
	resolvedA := make(chan struct{})
	go func() {
		defer close(resolvedA)
		_, _ = m.resolve(tA, "A", nil, nil)
	}()
	<-entered

	// A's watcher is still running; B must not overtake it
	tB := m.begin(nil)
	if _, err := m.resolve(tB, "B", nil, nil); err != nil {
		t.Fatalf("resolve(B) error = %v", err)
	}
	close(release)

	select {
	case <-resolvedA:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resolve(A)")
	}

	if got := m.State(); got != domain.Succeeded("B") {
		t.Fatalf("State() = %v, want succeeded(B)", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []domain.SubmissionState{domain.InFlight(), domain.Succeeded("A"), domain.InFlight(), domain.Succeeded("B")}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestChat_Scenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"reply":"Hello!"}`)
	}))
	defer server.Close()

	chat := NewChat(backend.NewClient(server.URL), nil, quiet...)
	state, err := chat.Submit(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if state != domain.Succeeded("Hello!") {
		t.Errorf("Submit() = %v, want succeeded(Hello!)", state)
	}

	want := []domain.MessageLogEntry{
		{Role: domain.RoleUser, Content: "Hi"},
		{Role: domain.RoleAssistant, Content: "Hello!"},
	}
	got := chat.Log()
	if len(got) != len(want) {
		t.Fatalf("Log() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Log()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestChat_UserEntryAppendedBeforeCall(t *testing.T) {
	be := newManualBackend()
	chat := NewChat(be, signedIn("u1"), quiet...)

	done := make(chan submitResult, 1)
	go func() {
		state, err := chat.Submit(context.Background(), "Hi")
		done <- submitResult{state, err}
	}()

	call := be.next(t)
	if got, _ := call.req.Field(domain.FieldUserID); got != "u1" {
		t.Errorf("user_id = %q, want u1", got)
	}
	if got := chat.State(); !got.Loading() {
		t.Errorf("State() during call = %v, want in_flight", got)
	}
	if got := chat.Log(); len(got) != 1 || got[0].Role != domain.RoleUser {
		t.Errorf("Log() during call = %v, want the user entry only", got)
	}

	call.respond("Hello!", nil)
	if res := await(t, done); res.err != nil {
		t.Fatalf("Submit() error = %v", res.err)
	}
}

func TestChat_FailureAppendsApology(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	chat := NewChat(backend.NewClient(server.URL), nil, quiet...)
	state, err := chat.Submit(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Submit() error = %v, backend failures must not escape", err)
	}
	if state.Phase != domain.PhaseFailed {
		t.Fatalf("Submit() = %v, want failed", state)
	}

	log := chat.Log()
	if len(log) != 2 {
		t.Fatalf("Log() = %v, want two entries", log)
	}
	if log[1] != (domain.MessageLogEntry{Role: domain.RoleAssistant, Content: ChatApology}) {
		t.Errorf("Log()[1] = %v, want apology", log[1])
	}
}

func TestChat_AssistantEntriesInCallOrder(t *testing.T) {
	be := newManualBackend()
	chat := NewChat(be, nil, quiet...)

	doneA := make(chan submitResult, 1)
	go func() {
		state, err := chat.Submit(context.Background(), "A")
		doneA <- submitResult{state, err}
	}()
	callA := be.next(t)

	doneB := make(chan submitResult, 1)
	go func() {
		state, err := chat.Submit(context.Background(), "B")
		doneB <- submitResult{state, err}
	}()
	callB := be.next(t)

	// B resolves first; its entry waits for A's
	callB.respond("reply B", nil)
	resB := await(t, doneB)
	if resB.err != nil {
		t.Fatalf("Submit(B) error = %v", resB.err)
	}
	if got := chat.Log(); len(got) != 2 {
		t.Errorf("Log() before A resolves = %v, want only user entries", got)
	}

	callA.respond("", errors.New("boom"))
	resA := await(t, doneA)
	if !errors.Is(resA.err, domain.ErrSuperseded) {
		t.Errorf("Submit(A) error = %v, want ErrSuperseded", resA.err)
	}

	want := []domain.MessageLogEntry{
		{Role: domain.RoleUser, Content: "A"},
		{Role: domain.RoleUser, Content: "B"},
		{Role: domain.RoleAssistant, Content: ChatApology},
		{Role: domain.RoleAssistant, Content: "reply B"},
	}
	got := chat.Log()
	if len(got) != len(want) {
		t.Fatalf("Log() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Log()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if state := chat.State(); state != domain.Succeeded("reply B") {
		t.Errorf("State() = %v, want succeeded(reply B)", state)
	}
}

func TestResume_RoundTripExact(t *testing.T) {
	const tailored = "  Jane Doe\n\n* Led migrations → 40% faster\t\n"
	be := &countingBackend{reply: tailored}
	r := NewResume(be, signedIn("u1"), quiet...)

	state, err := r.Submit(context.Background(), TailorInput{BaseResume: "R", JobDescription: "J"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if state.Result != tailored {
		t.Errorf("Result = %q, want %q", state.Result, tailored)
	}
}

func TestResume_GatingWithoutIdentity(t *testing.T) {
	sessions := []struct {
		name    string
		session ports.SessionReader
	}{
		{"signed out", fixedSession{}},
		{"initializing", fixedSession{IsInitializing: true}},
		{"no session", nil},
	}

	for _, tt := range sessions {
		t.Run(tt.name, func(t *testing.T) {
			be := &countingBackend{reply: "X"}
			r := NewResume(be, tt.session, quiet...)

			notified := 0
			r.Watch(func(domain.SubmissionState) { notified++ })

			state, err := r.Submit(context.Background(), TailorInput{BaseResume: "R", JobDescription: "J"})
			if !errors.Is(err, domain.ErrSignInRequired) {
				t.Errorf("Submit() error = %v, want ErrSignInRequired", err)
			}
			if state != domain.Idle() || r.State() != domain.Idle() {
				t.Errorf("state = %v, want idle", r.State())
			}
			if be.calls != 0 {
				t.Errorf("backend calls = %d, want 0", be.calls)
			}
			if notified != 0 {
				t.Errorf("watch notifications = %d, want 0", notified)
			}
		})
	}
}

func TestResume_ServerError(t *testing.T) {
	var userID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = r.FormValue("userId")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewResume(backend.NewClient(server.URL), signedIn("u1"), quiet...)
	state, err := r.Submit(context.Background(), TailorInput{BaseResume: "R", JobDescription: "J"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if state.Phase != domain.PhaseFailed {
		t.Fatalf("Submit() = %v, want failed", state)
	}
	if want := "API Error: 500 Internal Server Error"; state.Message != want {
		t.Errorf("Message = %q, want %q", state.Message, want)
	}
	if state.Result != "" {
		t.Errorf("Result = %q, want empty", state.Result)
	}
	if userID != "u1" {
		t.Errorf("userId = %q, want u1", userID)
	}
}

func TestResume_RapidSubmissionsLastWins(t *testing.T) {
	be := newManualBackend()
	r := NewResume(be, signedIn("u1"), quiet...)

	doneA := make(chan submitResult, 1)
	go func() {
		state, err := r.Submit(context.Background(), TailorInput{BaseResume: "A", JobDescription: "J"})
		doneA <- submitResult{state, err}
	}()
	callA := be.next(t)

	doneB := make(chan submitResult, 1)
	go func() {
		state, err := r.Submit(context.Background(), TailorInput{BaseResume: "B", JobDescription: "J"})
		doneB <- submitResult{state, err}
	}()
	callB := be.next(t)

	callB.respond("tailored B", nil)
	if res := await(t, doneB); res.err != nil || res.state != domain.Succeeded("tailored B") {
		t.Fatalf("Submit(B) = %v, %v", res.state, res.err)
	}

	callA.respond("tailored A", nil)
	resA := await(t, doneA)
	if !errors.Is(resA.err, domain.ErrSuperseded) {
		t.Errorf("Submit(A) error = %v, want ErrSuperseded", resA.err)
	}

	if got := r.State(); got != domain.Succeeded("tailored B") {
		t.Errorf("State() = %v, want succeeded(tailored B)", got)
	}
}

func TestResume_RejectedSubmitKeepsResult(t *testing.T) {
	ctx := context.Background()
	gw := memory.New(memory.WithSignedIn(domain.Identity{ID: "u1"}))
	store := session.New(gw, slog.New(slog.NewTextHandler(io.Discard, nil)))
	release, err := store.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer release()

	be := &countingBackend{reply: "X"}
	r := NewResume(be, store, quiet...)

	if _, err := r.Submit(ctx, TailorInput{BaseResume: "R", JobDescription: "J"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// The provider ends the session on its own
	if err := gw.SetIdentity(ctx, nil); err != nil {
		t.Fatalf("SetIdentity() error = %v", err)
	}

	state, err := r.Submit(ctx, TailorInput{BaseResume: "R2", JobDescription: "J2"})
	if !errors.Is(err, domain.ErrSignInRequired) {
		t.Errorf("Submit() after sign-out error = %v, want ErrSignInRequired", err)
	}
	if state != domain.Succeeded("X") || r.State() != domain.Succeeded("X") {
		t.Errorf("state = %v, want the previous result kept", r.State())
	}
	if be.calls != 1 {
		t.Errorf("backend calls = %d, want 1", be.calls)
	}
}

func TestChat_IdentityChangeDuringCall(t *testing.T) {
	ctx := context.Background()
	gw := memory.New(memory.WithSignedIn(domain.Identity{ID: "u1"}))
	store := session.New(gw, slog.New(slog.NewTextHandler(io.Discard, nil)))
	release, err := store.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer release()

	be := newManualBackend()
	chat := NewChat(be, store, quiet...)

	done := make(chan submitResult, 1)
	go func() {
		state, err := chat.Submit(ctx, "A")
		done <- submitResult{state, err}
	}()
	first := be.next(t)
	if got, _ := first.req.Field(domain.FieldUserID); got != "u1" {
		t.Errorf("first user_id = %q, want u1", got)
	}

	if err := gw.SetIdentity(ctx, &domain.Identity{ID: "u2"}); err != nil {
		t.Fatalf("SetIdentity() error = %v", err)
	}
	first.respond("reply A", nil)
	if res := await(t, done); res.state != domain.Succeeded("reply A") {
		t.Errorf("Submit(A) = %v, want succeeded(reply A)", res.state)
	}

	go func() {
		state, err := chat.Submit(ctx, "B")
		done <- submitResult{state, err}
	}()
	second := be.next(t)
	if got, _ := second.req.Field(domain.FieldUserID); got != "u2" {
		t.Errorf("second user_id = %q, want u2", got)
	}
	second.respond("reply B", nil)
	await(t, done)
}
