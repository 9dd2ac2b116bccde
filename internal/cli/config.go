package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/protega/cloudpay/server/internal/config"
)

func newConfigCmd(_ *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective server configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loadErr := config.Load()

			out, err := cfg.Redacted()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "# Effective configuration (.env + environment + providers file)")
			fmt.Fprint(cmd.OutOrStdout(), out)

			if loadErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", loadErr)
			}
			return nil
		},
	}
}
