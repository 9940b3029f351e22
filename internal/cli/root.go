// Package cli contains the commands of the applyai binary.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/applyai-client/internal/pkg/config"
	"github.com/tjfontaine/applyai-client/internal/runtime"
)

// version is set by SetVersion from build-time ldflags.
var version = "dev"

// SetVersion sets the version string reported by --version.
func SetVersion(v string) {
	version = v
}

type cli struct {
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger

	// appOptions are appended to the options every command builds the App
	// with.
	appOptions []runtime.Option
}

// NewRootCmd builds the command tree. opts are passed to every App the
// commands create.
func NewRootCmd(opts ...runtime.Option) *cobra.Command {
	c := &cli{appOptions: opts}

	root := &cobra.Command{
		Use:   "applyai",
		Short: "Chat with the ApplyAI assistant and tailor resumes from the terminal",
		Long: `applyai talks to the ApplyAI backend.

Example usage:
  applyai login                                  # Sign in through the identity provider
  applyai chat                                   # Interactive chat
  applyai chat "How do I word a career gap?"     # One question
  applyai tailor --resume cv.md --job job.txt    # Tailor a resume (requires sign-in)
  applyai history resumes                        # Previously tailored resumes
  applyai devserver                              # Local backend for development`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is "+config.DefaultPath+")")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newWhoamiCmd(),
		c.newChatCmd(),
		c.newTailorCmd(),
		c.newHistoryCmd(),
		c.newDevServerCmd(),
	)
	return root
}

// initConfig loads configuration and installs the logger.
func (c *cli) initConfig(stderr io.Writer) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg

	c.logger = newLogger(stderr, cfg.Logging, c.verbose)
	slog.SetDefault(c.logger)

	c.logger.Debug("configuration loaded",
		slog.String("backend", cfg.Backend.BaseURL),
		slog.String("identity_provider", cfg.Identity.Provider),
		slog.String("identity_cache", cfg.Identity.Cache))
	return nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startApp builds and starts an App for one command. The returned function
// shuts it down.
func (c *cli) startApp(cmd *cobra.Command) (*runtime.App, func(), error) {
	opts := []runtime.Option{
		runtime.WithConfig(c.cfg),
		runtime.WithLogger(c.logger),
		runtime.WithTraceWriter(cmd.ErrOrStderr()),
		runtime.WithBrowserOpener(promptOpener(cmd.ErrOrStderr())),
	}
	opts = append(opts, c.appOptions...)

	app, err := runtime.New(opts...)
	if err != nil {
		return nil, nil, err
	}

	if err := app.Start(cmd.Context()); err != nil {
		_ = app.Shutdown(context.Background())
		return nil, nil, err
	}

	return app, func() {
		if err := app.Shutdown(context.Background()); err != nil {
			c.logger.Warn("shutdown error", slog.String("error", err.Error()))
		}
	}, nil
}

// promptOpener prints the authorize URL for the user to open.
func promptOpener(w io.Writer) func(string) error {
	return func(authorizeURL string) error {
		fmt.Fprintln(w, styles.Muted.Render("Open this URL in your browser to sign in:"))
		fmt.Fprintln(w, "  "+styles.Link.Render(authorizeURL))
		return nil
	}
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// Fatal prints err the way the CLI reports errors and exits.
func Fatal(err error) {
	fmt.Fprintln(os.Stderr, styles.Error.Render("Error: "+err.Error()))
	os.Exit(1)
}
