package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/orchestrator"
)

func (c *cli) newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant",
		Long: `Chat with the assistant. With a message argument, sends it and prints the
reply. Without one, starts an interactive session; enter /quit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, stop, err := c.startApp(cmd)
			if err != nil {
				return err
			}
			defer stop()

			view := &chatView{chat: app.Chat(), out: cmd.OutOrStdout()}

			// Progress and session notices go to stderr so replies stay pipeable
			stderr := cmd.ErrOrStderr()
			defer app.Chat().Watch(func(s domain.SubmissionState) {
				if s.Loading() {
					fmt.Fprintln(stderr, styles.Muted.Render("..."))
				}
			})()
			defer app.Session().Watch(func(s domain.Session) {
				if s.SignedIn() {
					fmt.Fprintln(stderr, styles.Muted.Render("Signed in as "+s.Identity.Label()))
				} else {
					fmt.Fprintln(stderr, styles.Muted.Render("Signed out; messages are no longer saved to your history"))
				}
			})()

			if len(args) > 0 {
				state := view.send(cmd, strings.Join(args, " "))
				if state.Phase == domain.PhaseFailed {
					return errors.New(state.Message)
				}
				return nil
			}

			return view.repl(cmd, cmd.InOrStdin())
		},
	}
}

// chatView prints the chat log as it grows.
type chatView struct {
	chat    *orchestrator.Chat
	out     io.Writer
	printed int
}

func (v *chatView) send(cmd *cobra.Command, message string) domain.SubmissionState {
	// The user's own entry was just typed; skip echoing it
	v.printed++

	state, err := v.chat.Submit(cmd.Context(), message)
	if errors.Is(err, domain.ErrSuperseded) {
		state = v.chat.State()
	}

	v.flush()
	if state.Phase == domain.PhaseFailed {
		fmt.Fprintln(v.out, styles.Error.Render(state.Message))
	}
	return state
}

// flush prints entries appended since the last call.
func (v *chatView) flush() {
	log := v.chat.Log()
	for _, entry := range log[v.printed:] {
		fmt.Fprintf(v.out, "%s: %s\n", speaker(entry.Role), entry.Content)
	}
	v.printed = len(log)
}

func (v *chatView) repl(cmd *cobra.Command, in io.Reader) error {
	fmt.Fprintln(v.out, styles.Muted.Render("Type a message and press enter. /quit to leave."))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(v.out, speaker(domain.RoleUser)+"> ")
		if !scanner.Scan() {
			fmt.Fprintln(v.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		v.send(cmd, line)

		if err := cmd.Context().Err(); err != nil {
			return nil
		}
	}
}
