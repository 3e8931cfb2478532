package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xtrntr/feeledger/internal/db"
	"github.com/xtrntr/feeledger/internal/ledger"
)

var (
	// OperationsTotal counts ledger operations by outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feeledger_operations_total",
			Help: "Total number of ledger operations by operation and result",
		},
		[]string{"op", "result"},
	)

	// FillVolumeTotal sums settled trade sizes.
	FillVolumeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeledger_fill_volume_total",
			Help: "Total size settled by fills",
		},
	)

	// NetFeesTotal sums net fees retained by markets.
	NetFeesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeledger_net_fees_total",
			Help: "Total net fees (taker fee minus maker rebate) collected",
		},
	)

	// RewardsDistributedTotal sums liquidity rewards paid out.
	RewardsDistributedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeledger_liquidity_rewards_distributed_total",
			Help: "Total liquidity rewards distributed",
		},
	)

	// FeesWithdrawnTotal sums fees withdrawn by market authorities.
	FeesWithdrawnTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeledger_fees_withdrawn_total",
			Help: "Total collected fees withdrawn",
		},
	)
)

var rejections = []error{
	ledger.ErrUnauthorized,
	ledger.ErrInvalidFeeConfiguration,
	ledger.ErrNoFreeOrderSlot,
	ledger.ErrInvalidOrderIndex,
	ledger.ErrNoOpenOrders,
	ledger.ErrOrderExpired,
	ledger.ErrNegativeFee,
	ledger.ErrOverflow,
	ledger.ErrInsufficientFunds,
	db.ErrNotFound,
	db.ErrExists,
}

// IsRejection reports whether err is a domain rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRejection(err):
		return "rejected"
	default:
		return "error"
	}
}
