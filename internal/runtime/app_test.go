package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/devbackend"
	"github.com/tjfontaine/applyai-client/internal/orchestrator"
	"github.com/tjfontaine/applyai-client/internal/pkg/config"
	"github.com/tjfontaine/applyai-client/internal/tokens"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	t.Setenv("APPLYAI_BACKEND__BASE_URL", baseURL)
	t.Setenv("APPLYAI_IDENTITY__CACHE_PATH", filepath.Join(t.TempDir(), "identity.db"))
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func newDevBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := devbackend.NewServer(0, quietLogger())
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts
}

func TestApp_New_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil config", WithConfig(nil)},
		{"bad config file", WithFileConfig(writeFile(t, "backend: [unclosed"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestApp_New_UnknownProvider(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Identity.Provider = "carrier-pigeon"

	if _, err := New(WithConfig(cfg), WithLogger(quietLogger())); err == nil {
		t.Fatal("New() error = nil, want error")
	}
}

func TestApp_EndToEnd(t *testing.T) {
	ts := newDevBackend(t)
	cfg := testConfig(t, ts.URL)

	app, err := New(WithConfig(cfg), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer app.Shutdown(context.Background())

	if err := app.Start(ctx); err == nil {
		t.Error("second Start() error = nil, want error")
	}

	// Signed out: the resume surface is gated, chat is not
	if _, err := app.Resume().Submit(ctx, resumeInput()); !errors.Is(err, domain.ErrSignInRequired) {
		t.Errorf("Resume().Submit() error = %v, want ErrSignInRequired", err)
	}
	state, err := app.Chat().Submit(ctx, "Hi")
	if err != nil || state != domain.Succeeded("You said: Hi") {
		t.Errorf("Chat().Submit() = %v, %v", state, err)
	}

	app.Session().SignIn(ctx)
	if got := app.Session().Current().UserID(); got != "dev-user" {
		t.Fatalf("UserID() = %q, want dev-user", got)
	}

	state, err = app.Resume().Submit(ctx, resumeInput())
	if err != nil {
		t.Fatalf("Resume().Submit() error = %v", err)
	}
	if state.Phase != domain.PhaseSucceeded || !strings.Contains(state.Result, "- Go") {
		t.Errorf("Resume().Submit() = %v", state)
	}

	resumes, err := app.History().ListResumes(ctx, "dev-user")
	if err != nil {
		t.Fatalf("ListResumes() error = %v", err)
	}
	if len(resumes) != 1 {
		t.Errorf("ListResumes() = %d, want 1", len(resumes))
	}
}

func TestApp_IdentitySurvivesRestart(t *testing.T) {
	ts := newDevBackend(t)
	cfg := testConfig(t, ts.URL)
	ctx := context.Background()

	first, err := New(WithConfig(cfg), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first.Session().SignIn(ctx)
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	second, err := New(WithConfig(cfg), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer second.Shutdown(ctx)

	if !second.Session().Current().SignedIn() {
		t.Error("identity not restored from the sqlite cache")
	}
}

func TestApp_Tracing(t *testing.T) {
	ts := newDevBackend(t)
	cfg := testConfig(t, ts.URL)
	cfg.Telemetry.Enabled = true
	cfg.Identity.Cache = config.CacheMemory

	var spans bytes.Buffer
	app, err := New(WithConfig(cfg), WithLogger(quietLogger()), WithTraceWriter(&spans))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := app.Chat().Submit(ctx, "Hi"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if !strings.Contains(spans.String(), "orchestrator.submit") {
		t.Errorf("spans missing orchestrator.submit: %s", spans.String())
	}
}

func TestApp_WithBackendURL(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = io.WriteString(w, `{"reply":"override"}`)
	}))
	defer ts.Close()

	cfg := testConfig(t, "http://127.0.0.1:1")
	app, err := New(WithConfig(cfg), WithMemoryCache(), WithBackendURL(ts.URL), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer app.Shutdown(context.Background())

	state, _ := app.Chat().Submit(context.Background(), "Hi")
	if state != domain.Succeeded("override") || hits != 1 {
		t.Errorf("Submit() = %v with %d hits, want the override backend", state, hits)
	}
}

func resumeInput() orchestrator.TailorInput {
	return orchestrator.TailorInput{BaseResume: "Jane Doe", JobDescription: "Go"}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "applyai.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestApp_Tokens(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")

	app, err := New(WithConfig(cfg), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Shutdown(context.Background())
	if n := app.Tokens().Count("Tailor my resume for a Go role"); n <= 0 {
		t.Errorf("default Tokens().Count() = %d, want > 0", n)
	}

	estimator := tokens.NewEstimator()
	custom, err := New(WithConfig(cfg), WithLogger(quietLogger()), WithMemoryCache(), WithTokenCounter(estimator))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer custom.Shutdown(context.Background())
	if custom.Tokens() != estimator {
		t.Errorf("Tokens() = %T, want the configured counter", custom.Tokens())
	}
}
