package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardsd_claim_cycles_total",
			Help: "Total number of claim cycles by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rewardsd_claim_cycle_duration_seconds",
			Help:    "Duration of claim cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	ClaimedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewardsd_claimed_amount_total",
			Help: "Cumulative amount claimed from the fee vault, in base units",
		},
	)

	DistributedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewardsd_distributed_amount_total",
			Help: "Cumulative amount allocated to holder distributions, in base units",
		},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewardsd_payouts_total",
			Help: "Total number of payout transfers by status",
		},
		[]string{"status"},
	)

	EligibleHolders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rewardsd_eligible_holders",
			Help: "Eligible holder count from the most recent claim cycle",
		},
	)

	SchedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rewardsd_scheduler_running",
			Help: "Whether the claim scheduler loop is running (1) or stopped (0)",
		},
	)
)
