package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/orchestrator"
)

var errSignInFirst = errors.New("you must be signed in; run `applyai login` first")

func (c *cli) newTailorCmd() *cobra.Command {
	var (
		resumePath string
		jobPath    string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "tailor",
		Short: "Tailor a resume to a job description",
		Long: `Tailor a resume to a job description. Both inputs are read from files;
"-" reads one of them from standard input. Requires sign-in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resumePath == "-" && jobPath == "-" {
				return errors.New("only one of --resume and --job can read standard input")
			}

			baseResume, err := readInput(cmd.InOrStdin(), resumePath)
			if err != nil {
				return fmt.Errorf("failed to read resume: %w", err)
			}
			jobDescription, err := readInput(cmd.InOrStdin(), jobPath)
			if err != nil {
				return fmt.Errorf("failed to read job description: %w", err)
			}
			if strings.TrimSpace(baseResume) == "" || strings.TrimSpace(jobDescription) == "" {
				return errors.New("resume and job description must not be empty")
			}

			app, stop, err := c.startApp(cmd)
			if err != nil {
				return err
			}
			defer stop()

			// The orchestrator enforces this too; checking here gives a useful message
			if !app.Session().Current().SignedIn() {
				return errSignInFirst
			}

			out := cmd.OutOrStdout()
			stopWatch := app.Resume().Watch(func(s domain.SubmissionState) {
				if s.Loading() {
					fmt.Fprintln(cmd.ErrOrStderr(), styles.Muted.Render("Tailoring your resume..."))
				}
			})
			defer stopWatch()

			state, err := app.Resume().Submit(cmd.Context(), orchestrator.TailorInput{
				BaseResume:     baseResume,
				JobDescription: jobDescription,
			})
			if errors.Is(err, domain.ErrSignInRequired) {
				return errSignInFirst
			}
			if state.Phase == domain.PhaseFailed {
				return errors.New(state.Message)
			}
			c.logger.Debug("resume tailored", slog.Int("tokens", app.Tokens().Count(state.Result)))

			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(state.Result), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", outPath, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Wrote %s\n", styles.Success.Render("✓"), outPath)
				return nil
			}

			_, err = io.WriteString(out, state.Result)
			return err
		},
	}

	cmd.Flags().StringVar(&resumePath, "resume", "", "file containing your resume (- for stdin)")
	cmd.Flags().StringVar(&jobPath, "job", "", "file containing the job description (- for stdin)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the tailored resume to a file instead of stdout")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
