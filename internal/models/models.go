package models

import (
	"encoding/hex"
	"fmt"
)

// MaxOrders is the number of order slots embedded in every user ledger
const MaxOrders = 5

// IdentitySize is the byte length of an account identity (an ed25519 public key)
const IdentitySize = 32

// Identity identifies an account owner, a market, or a referrer
type Identity [IdentitySize]byte

// ParseIdentity decodes a hex encoded identity
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid identity: %w", err)
	}
	if len(b) != IdentitySize {
		return id, fmt.Errorf("invalid identity length: expected %d bytes, got %d", IdentitySize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the hex encoding of the identity
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identity is all zero bytes
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// MarshalText implements encoding.TextMarshaler
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := ParseIdentity(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Side is the side of a resting order
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

// String returns "bid" or "ask"
func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler
func (s Side) MarshalText() ([]byte, error) {
	if s != SideBid && s != SideAsk {
		return nil, fmt.Errorf("unknown side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bid":
		*s = SideBid
	case "ask":
		*s = SideAsk
	default:
		return fmt.Errorf("side must be 'bid' or 'ask'")
	}
	return nil
}

// Order is one slot of a user's order table. A slot with SizeRemaining == 0 is
// free; the zero value is a free slot.
type Order struct {
	Side              Side   `json:"side"`
	Price             uint64 `json:"price"`
	SizeRemaining     uint64 `json:"size_remaining"`
	CreationTimestamp int64  `json:"creation_timestamp"` // unix seconds
	ExpiryTimestamp   int64  `json:"expiry_timestamp"`   // 0 means never
}

// IsOpen reports whether the slot holds a live order
func (o Order) IsOpen() bool {
	return o.SizeRemaining > 0
}

// MarketParameters is the fee configuration and running totals of one market
type MarketParameters struct {
	Authority                        Identity `json:"authority"`
	MakerRebateBps                   uint16   `json:"maker_rebate_bps"`
	TakerFeeBps                      uint16   `json:"taker_fee_bps"`
	ReferralBps                      uint16   `json:"referral_bps"`
	TotalFeesCollected               uint64   `json:"total_fees_collected"`
	TotalLiquidityRewardsDistributed uint64   `json:"total_liquidity_rewards_distributed"`
}

// UserLedger holds a user's per-market counters and order slots
type UserLedger struct {
	Authority          Identity         `json:"authority"`
	MakerVolume        uint64           `json:"maker_volume"`
	TakerVolume        uint64           `json:"taker_volume"`
	MakerRebatesEarned uint64           `json:"maker_rebates_earned"`
	TakerFeesPaid      uint64           `json:"taker_fees_paid"`
	LiquidityScore     uint64           `json:"liquidity_score"`
	Referrer           *Identity        `json:"referrer,omitempty"`
	Orders             [MaxOrders]Order `json:"orders"`
}

// OpenOrders returns the number of occupied slots
func (l *UserLedger) OpenOrders() int {
	n := 0
	for _, o := range l.Orders {
		if o.IsOpen() {
			n++
		}
	}
	return n
}
