package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"holder-rewards/internal/storage"
)

// Export renders claim history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	claims, err := store.ListClaimsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		a.Logger.Info().Msg("no claims found for export window")
		return nil
	}

	downsampled := downsampleClaims(claims, opts.MaxPoints)
	a.Logger.Info().Int("total", len(claims)).Int("exported", len(downsampled)).Msg("exporting claims")

	if opts.CSVPath != "" {
		if err := writeClaimsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeClaimsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleClaims(claims []storage.DividendClaim, max int) []storage.DividendClaim {
	if max <= 0 || len(claims) <= max {
		return claims
	}

	result := make([]storage.DividendClaim, 0, max)
	step := float64(len(claims)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(claims) {
			idx = len(claims) - 1
		}
		result = append(result, claims[idx])
	}
	return result
}

func writeClaimsCSV(path string, claims []storage.DividendClaim) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "claim_ts", "claimed_amount", "distribution_amount", "eligible_holders", "status", "transaction_id", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, claim := range claims {
		errMsg := ""
		if claim.ErrorMessage != nil {
			errMsg = *claim.ErrorMessage
		}
		record := []string{
			strconv.FormatInt(claim.ID, 10),
			claim.ClaimTimestamp.UTC().Format(time.RFC3339),
			claim.ClaimedAmount.String(),
			claim.DistributionAmount.String(),
			strconv.Itoa(claim.EligibleHolderCount),
			claim.Status,
			claim.TransactionID,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeClaimsPNG(path string, claims []storage.DividendClaim) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(claims))
	claimed := make([]float64, len(claims))
	distributed := make([]float64, len(claims))
	eligible := make([]float64, len(claims))

	for i, claim := range claims {
		x[i] = claim.ClaimTimestamp
		claimed[i] = claim.ClaimedAmount.InexactFloat64()
		distributed[i] = claim.DistributionAmount.InexactFloat64()
		eligible[i] = float64(claim.EligibleHolderCount)
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Amount (SOL)",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Eligible holders",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Claimed",
				XValues: x,
				YValues: claimed,
			},
			chart.TimeSeries{
				Name:    "Distributed",
				XValues: x,
				YValues: distributed,
			},
			chart.TimeSeries{
				Name:    "Eligible holders",
				XValues: x,
				YValues: eligible,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
