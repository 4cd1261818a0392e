package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"holder-rewards/internal/storage"
)

// ShowSettings prints the current claim policy.
func (a *App) ShowSettings(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	settings, err := store.GetSettings(ctx)
	if err != nil {
		return err
	}

	printSettings(settings)
	return nil
}

// UpdateSettings applies a partial settings change and prints the result.
func (a *App) UpdateSettings(ctx context.Context, update SettingsUpdate) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	settings, err := store.GetSettings(ctx)
	if err != nil {
		return err
	}

	if update.Enabled != nil {
		settings.Enabled = *update.Enabled
	}
	if update.ClaimIntervalMinutes != nil {
		if *update.ClaimIntervalMinutes < 1 {
			return fmt.Errorf("claim interval must be at least 1 minute")
		}
		settings.ClaimIntervalMinutes = *update.ClaimIntervalMinutes
	}
	if update.DistributionPercentage != nil {
		if err := validatePercent("distribution percentage", *update.DistributionPercentage); err != nil {
			return err
		}
		settings.DistributionPercentage = *update.DistributionPercentage
	}
	if update.MinClaimAmount != nil {
		if update.MinClaimAmount.IsNegative() {
			return fmt.Errorf("minimum claim amount cannot be negative")
		}
		settings.MinClaimAmount = *update.MinClaimAmount
	}
	if update.FeeSourceAccount != nil {
		settings.FeeSourceAccount = *update.FeeSourceAccount
	}
	if update.TokenMintAddress != nil {
		settings.TokenMintAddress = *update.TokenMintAddress
	}
	if update.SellThresholdPercent != nil {
		if err := validatePercent("sell threshold", *update.SellThresholdPercent); err != nil {
			return err
		}
		settings.SellThresholdPercent = *update.SellThresholdPercent
	}

	stored, err := store.UpdateSettings(ctx, settings)
	if err != nil {
		return err
	}

	printSettings(stored)
	return nil
}

// ResetHolder clears a holder's blacklist state so the next claim
// re-baselines them. An empty mint falls back to the configured token mint.
func (a *App) ResetHolder(ctx context.Context, mint, address string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if mint == "" {
		settings, err := store.GetSettings(ctx)
		if err != nil {
			return err
		}
		mint = settings.TokenMintAddress
	}
	if mint == "" {
		return fmt.Errorf("token mint is not configured; pass --mint")
	}

	if err := store.ResetEligibility(ctx, mint, address); err != nil {
		return err
	}

	a.Logger.Info().Str("holder", address).Str("mint", mint).Msg("holder eligibility reset")
	fmt.Fprintf(os.Stdout, "holder %s reset for mint %s\n", address, mint)
	return nil
}

func validatePercent(name string, value decimal.Decimal) error {
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", name)
	}
	return nil
}

func printSettings(settings storage.AutoClaimSettings) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "enabled\t%t\n", settings.Enabled)
	fmt.Fprintf(writer, "claim interval\t%d minutes\n", settings.ClaimIntervalMinutes)
	fmt.Fprintf(writer, "distribution percentage\t%s%%\n", settings.DistributionPercentage.String())
	fmt.Fprintf(writer, "minimum claim amount\t%s\n", settings.MinClaimAmount.String())
	fmt.Fprintf(writer, "fee source account\t%s\n", settings.FeeSourceAccount)
	fmt.Fprintf(writer, "token mint\t%s\n", settings.TokenMintAddress)
	fmt.Fprintf(writer, "sell threshold\t%s%%\n", settings.SellThresholdPercent.String())
	if settings.NextClaimScheduled != nil {
		fmt.Fprintf(writer, "next claim\t%s\n", settings.NextClaimScheduled.UTC().Format(time.RFC3339))
	}
	if settings.LastSuccessfulClaim != nil {
		fmt.Fprintf(writer, "last successful claim\t%s\n", settings.LastSuccessfulClaim.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(writer, "updated at\t%s\n", settings.UpdatedAt.UTC().Format(time.RFC3339))
	writer.Flush()
}
