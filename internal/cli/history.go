package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const previewLength = 72

func (c *cli) newHistoryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:       "history [chats|resumes]",
		Short:     "List your stored chats or tailored resumes",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"chats", "resumes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "chats"
			if len(args) == 1 {
				kind = args[0]
			}

			app, stop, err := c.startApp(cmd)
			if err != nil {
				return err
			}
			defer stop()

			current := app.Session().Current()
			if !current.SignedIn() {
				return errSignInFirst
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")

			switch kind {
			case "resumes":
				resumes, err := app.History().ListResumes(cmd.Context(), current.UserID())
				if err != nil {
					return fmt.Errorf("failed to list resumes: %w", err)
				}
				if asJSON {
					return enc.Encode(resumes)
				}
				if len(resumes) == 0 {
					fmt.Fprintln(out, styles.Muted.Render("No tailored resumes yet."))
				}
				for _, r := range resumes {
					fmt.Fprintf(out, "%s  %s\n", styles.Title.Render(r.CreatedAt.Local().Format("2006-01-02 15:04")), preview(r.TailoredResume))
				}

			default:
				chats, err := app.History().ListChats(cmd.Context(), current.UserID())
				if err != nil {
					return fmt.Errorf("failed to list chats: %w", err)
				}
				if asJSON {
					return enc.Encode(chats)
				}
				if len(chats) == 0 {
					fmt.Fprintln(out, styles.Muted.Render("No chats yet."))
				}
				for _, chat := range chats {
					fmt.Fprintln(out, styles.Title.Render(chat.Timestamp.Local().Format("2006-01-02 15:04")))
					for _, m := range chat.Messages {
						fmt.Fprintf(out, "  %s: %s\n", speaker(m.Role), preview(m.Content))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// preview collapses text onto one line and shortens it.
func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength-1]) + "…"
}
