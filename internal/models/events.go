package models

// Event is a notification emitted by a committed ledger operation
type Event interface {
	EventName() string
}

// FeeParametersUpdated is emitted when the market authority changes the fee rates
type FeeParametersUpdated struct {
	MakerRebateBps uint16 `json:"maker_rebate_bps"`
	TakerFeeBps    uint16 `json:"taker_fee_bps"`
	ReferralBps    uint16 `json:"referral_bps"`
}

// OrderPlaced is emitted when an order is written into a free slot
type OrderPlaced struct {
	User            Identity `json:"user"`
	OrderIndex      uint8    `json:"order_index"`
	Side            Side     `json:"side"`
	Price           uint64   `json:"price"`
	Size            uint64   `json:"size"`
	ExpiryTimestamp int64    `json:"expiry_timestamp"`
}

// OrderCanceled is emitted when an open slot is cancelled by its owner
type OrderCanceled struct {
	User         Identity `json:"user"`
	OrderIndex   uint8    `json:"order_index"`
	CanceledSize uint64   `json:"canceled_size"`
}

// OrderFilled is emitted for every settled fill
type OrderFilled struct {
	Maker          Identity `json:"maker"`
	Taker          Identity `json:"taker"`
	OrderIndex     uint8    `json:"order_index"`
	TradeSize      uint64   `json:"trade_size"`
	MakerRebate    uint64   `json:"maker_rebate"`
	TakerFee       uint64   `json:"taker_fee"`
	ReferralReward uint64   `json:"referral_reward"`
	FullyFilled    bool     `json:"fully_filled"`
}

// FeesWithdrawn is emitted when the authority debits collected fees
type FeesWithdrawn struct {
	Authority Identity `json:"authority"`
	Amount    uint64   `json:"amount"`
}

// LiquidityRewardsDistributed is emitted when a user's liquidity score is paid out
type LiquidityRewardsDistributed struct {
	User              Identity `json:"user"`
	DistributedAmount uint64   `json:"distributed_amount"`
}

func (FeeParametersUpdated) EventName() string        { return "fee_parameters_updated" }
func (OrderPlaced) EventName() string                 { return "order_placed" }
func (OrderCanceled) EventName() string               { return "order_canceled" }
func (OrderFilled) EventName() string                 { return "order_filled" }
func (FeesWithdrawn) EventName() string               { return "fees_withdrawn" }
func (LiquidityRewardsDistributed) EventName() string { return "liquidity_rewards_distributed" }
