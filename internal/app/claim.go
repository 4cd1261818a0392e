package app

import (
	"context"
	"fmt"
	"os"

	"holder-rewards/internal/service"
)

// Claim runs a single claim cycle in the foreground and prints the outcome.
func (a *App) Claim(ctx context.Context, force bool) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	result := a.newService(store).RunCycle(ctx, force)

	switch result.Outcome {
	case service.OutcomeCompleted:
		fmt.Fprintf(os.Stdout, "claim %d completed: claimed %s, distributed %s to %d/%d holders (tx %s)\n",
			result.ClaimID,
			result.ClaimedAmount.String(),
			result.DistributionAmount.String(),
			result.EligibleHolders,
			result.TotalHolders,
			result.TransactionID,
		)
	case service.OutcomeNoOp:
		fmt.Fprintf(os.Stdout, "no claim performed: %s\n", result.Reason)
	case service.OutcomeFailed:
		if result.ClaimID != 0 {
			fmt.Fprintf(os.Stdout, "claim %d failed: %v\n", result.ClaimID, result.Err)
		} else {
			fmt.Fprintf(os.Stdout, "claim failed: %v\n", result.Err)
		}
		return result.Err
	}

	if result.NextClaim != nil {
		fmt.Fprintf(os.Stdout, "next claim scheduled for %s\n", result.NextClaim.UTC().Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
