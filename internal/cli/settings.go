package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"holder-rewards/internal/app"
)

var (
	setEnabled       bool
	setInterval      int
	setDistribution  string
	setMinClaim      string
	setFeeSource     string
	setTokenMint     string
	setSellThreshold string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or change the claim policy",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current claim policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowSettings(cmd.Context())
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update claim policy fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		var update app.SettingsUpdate

		if cmd.Flags().Changed("enabled") {
			update.Enabled = &setEnabled
		}
		if cmd.Flags().Changed("interval") {
			update.ClaimIntervalMinutes = &setInterval
		}
		if cmd.Flags().Changed("distribution-pct") {
			value, err := decimal.NewFromString(setDistribution)
			if err != nil {
				return fmt.Errorf("invalid --distribution-pct value: %w", err)
			}
			update.DistributionPercentage = &value
		}
		if cmd.Flags().Changed("min-claim") {
			value, err := decimal.NewFromString(setMinClaim)
			if err != nil {
				return fmt.Errorf("invalid --min-claim value: %w", err)
			}
			update.MinClaimAmount = &value
		}
		if cmd.Flags().Changed("fee-source") {
			update.FeeSourceAccount = &setFeeSource
		}
		if cmd.Flags().Changed("token-mint") {
			update.TokenMintAddress = &setTokenMint
		}
		if cmd.Flags().Changed("sell-threshold") {
			value, err := decimal.NewFromString(setSellThreshold)
			if err != nil {
				return fmt.Errorf("invalid --sell-threshold value: %w", err)
			}
			update.SellThresholdPercent = &value
		}

		return getApp().UpdateSettings(cmd.Context(), update)
	},
}

func init() {
	settingsSetCmd.Flags().BoolVar(&setEnabled, "enabled", false, "Enable or disable automatic claims")
	settingsSetCmd.Flags().IntVar(&setInterval, "interval", 0, "Claim interval in minutes")
	settingsSetCmd.Flags().StringVar(&setDistribution, "distribution-pct", "", "Percentage of claimed fees to distribute (0-100)")
	settingsSetCmd.Flags().StringVar(&setMinClaim, "min-claim", "", "Minimum claimable balance before a claim runs")
	settingsSetCmd.Flags().StringVar(&setFeeSource, "fee-source", "", "Fee vault account to claim from")
	settingsSetCmd.Flags().StringVar(&setTokenMint, "token-mint", "", "Token mint whose holders receive dividends")
	settingsSetCmd.Flags().StringVar(&setSellThreshold, "sell-threshold", "", "Allowed sell percentage before blacklisting (0-100)")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}
