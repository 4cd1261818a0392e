package cli

import (
	"github.com/spf13/cobra"
)

var claimForce bool

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Run a single claim cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Claim(cmd.Context(), claimForce)
	},
}

func init() {
	claimCmd.Flags().BoolVar(&claimForce, "force", false, "Run even when disabled or not yet due")
}
