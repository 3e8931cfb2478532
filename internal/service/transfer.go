package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/models"
)

// IntentKind names the reason for an outbound transfer
type IntentKind string

const (
	IntentFeeWithdrawal   IntentKind = "fee_withdrawal"
	IntentLiquidityReward IntentKind = "liquidity_reward"
)

// TransferIntent asks custody to move Amount to Recipient. It is signalled
// after the accounting change has been committed.
type TransferIntent struct {
	Kind      IntentKind      `json:"kind"`
	Market    models.Identity `json:"market"`
	Recipient models.Identity `json:"recipient"`
	Amount    uint64          `json:"amount"`
}

// Transferer hands transfer intents to whatever custodies the market's funds
type Transferer interface {
	Transfer(ctx context.Context, intent TransferIntent) error
}

// LogTransferer only records intents; it moves nothing
type LogTransferer struct {
	logger *zap.Logger
}

// NewLogTransferer creates a transferer that logs every intent
func NewLogTransferer(logger *zap.Logger) *LogTransferer {
	return &LogTransferer{logger: logger}
}

// Transfer logs the intent
func (t *LogTransferer) Transfer(_ context.Context, intent TransferIntent) error {
	t.logger.Info("Transfer intent",
		zap.String("kind", string(intent.Kind)),
		zap.Stringer("market", intent.Market),
		zap.Stringer("recipient", intent.Recipient),
		zap.Uint64("amount", intent.Amount))
	return nil
}
