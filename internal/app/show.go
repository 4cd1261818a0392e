package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent claim history.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	claims, err := store.ListRecentClaims(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		fmt.Fprintln(os.Stdout, "no claims found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTime (UTC)\tClaimed\tDistributed\tEligible\tStatus\tTx\tError")

	for _, claim := range claims {
		errMsg := ""
		if claim.ErrorMessage != nil {
			errMsg = sanitizeInline(*claim.ErrorMessage)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			claim.ID,
			claim.ClaimTimestamp.UTC().Format(time.RFC3339),
			formatDecimal(claim.ClaimedAmount, 9),
			formatDecimal(claim.DistributionAmount, 9),
			claim.EligibleHolderCount,
			claim.Status,
			claim.TransactionID,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
