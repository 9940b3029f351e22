package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in through the identity provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, stop, err := c.startApp(cmd)
			if err != nil {
				return err
			}
			defer stop()

			out := cmd.OutOrStdout()
			if current := app.Session().Current(); current.SignedIn() {
				fmt.Fprintf(out, "Already signed in as %s\n", styles.Title.Render(current.Identity.Label()))
				return nil
			}

			app.Session().SignIn(cmd.Context())

			// Sign-in failures are indistinguishable from the user giving up
			current := app.Session().Current()
			if !current.SignedIn() {
				fmt.Fprintln(out, styles.Muted.Render("Sign-in did not complete."))
				return nil
			}
			fmt.Fprintf(out, "%s Signed in as %s\n", styles.Success.Render("✓"), styles.Title.Render(current.Identity.Label()))
			return nil
		},
	}
}

func (c *cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, stop, err := c.startApp(cmd)
			if err != nil {
				return err
			}
			defer stop()

			app.Session().LogOut(cmd.Context())

			if app.Session().Current().SignedIn() {
				fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render("Sign-out did not complete."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, stop, err := c.startApp(cmd)
			if err != nil {
				return err
			}
			defer stop()

			out := cmd.OutOrStdout()
			current := app.Session().Current()
			if !current.SignedIn() {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}

			identity := current.Identity
			fmt.Fprintln(out, styles.Title.Render(identity.Label()))
			fmt.Fprintf(out, "  id:    %s\n", identity.ID)
			if identity.Email != "" {
				fmt.Fprintf(out, "  email: %s\n", identity.Email)
			}
			return nil
		},
	}
}
