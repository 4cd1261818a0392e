package cli

import (
	"github.com/spf13/cobra"
)

var resetMint string

var resetHolderCmd = &cobra.Command{
	Use:   "reset-holder <address>",
	Short: "Clear a holder's blacklist state and re-baseline them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ResetHolder(cmd.Context(), resetMint, args[0])
	},
}

func init() {
	resetHolderCmd.Flags().StringVar(&resetMint, "mint", "", "Token mint (defaults to the configured mint)")
}
