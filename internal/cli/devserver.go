package cli

import (
	"github.com/spf13/cobra"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/devbackend"
	"github.com/tjfontaine/applyai-client/internal/telemetry"
)

func (c *cli) newDevServerCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local backend for development",
		Long: `Run a local stand-in for the ApplyAI backend. It serves /chat, /resumes and
the history endpoints with canned responses and an in-memory history. When
identity.signing_key is configured it also serves /authorize, which signs in
as identity.dev_user without prompting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = c.cfg.DevServer.Port
			}

			if c.cfg.Telemetry.Enabled {
				shutdown, err := telemetry.InitTracer(c.cfg.Telemetry.ServiceName+"-devserver", cmd.ErrOrStderr(), c.logger)
				if err != nil {
					return err
				}
				defer shutdown(cmd.Context())
			}

			idCfg := c.cfg.Identity
			srv := devbackend.NewServer(port, c.logger,
				devbackend.WithAuth(devbackend.AuthConfig{
					SigningKey: []byte(idCfg.SigningKey),
					Issuer:     idCfg.Issuer,
					Audience:   idCfg.Audience,
					User: domain.Identity{
						ID:          idCfg.DevUser.ID,
						DisplayName: idCfg.DevUser.Name,
						Email:       idCfg.DevUser.Email,
					},
				}))

			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from devserver.port)")
	return cmd
}
