package ledger

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/xtrntr/feeledger/internal/models"
)

// Engine applies fee, order and reward operations to in-memory records. It holds
// no state besides its clock; callers load records, run one operation and persist
// the result. An operation that returns an error leaves every record unchanged.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine reading time from now (time.Now when nil)
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

func (e *Engine) unixNow() int64 {
	return e.now().Unix()
}

func validateFees(makerRebateBps, takerFeeBps, referralBps uint16) error {
	if makerRebateBps > takerFeeBps || referralBps > takerFeeBps {
		return ErrInvalidFeeConfiguration
	}
	return nil
}

func checkIndex(index int) error {
	if index < 0 || index >= models.MaxOrders {
		return ErrInvalidOrderIndex
	}
	return nil
}

// InitializeMarket creates the parameters record of a new market
func (e *Engine) InitializeMarket(authority models.Identity, makerRebateBps, takerFeeBps, referralBps uint16) (*models.MarketParameters, error) {
	if err := validateFees(makerRebateBps, takerFeeBps, referralBps); err != nil {
		return nil, err
	}
	return &models.MarketParameters{
		Authority:      authority,
		MakerRebateBps: makerRebateBps,
		TakerFeeBps:    takerFeeBps,
		ReferralBps:    referralBps,
	}, nil
}

// UpdateFeeParameters replaces the market's rates. Changes apply to every later fill.
func (e *Engine) UpdateFeeParameters(market *models.MarketParameters, caller models.Identity, makerRebateBps, takerFeeBps, referralBps uint16) (*models.FeeParametersUpdated, error) {
	if market.Authority != caller {
		return nil, ErrUnauthorized
	}
	if err := validateFees(makerRebateBps, takerFeeBps, referralBps); err != nil {
		return nil, err
	}
	market.MakerRebateBps = makerRebateBps
	market.TakerFeeBps = takerFeeBps
	market.ReferralBps = referralBps
	return &models.FeeParametersUpdated{
		MakerRebateBps: makerRebateBps,
		TakerFeeBps:    takerFeeBps,
		ReferralBps:    referralBps,
	}, nil
}

// RegisterUser creates an empty ledger. The referrer is stored as given; it is
// not required to be registered.
func (e *Engine) RegisterUser(authority models.Identity, referrer *models.Identity) *models.UserLedger {
	l := &models.UserLedger{Authority: authority}
	if referrer != nil {
		ref := *referrer
		l.Referrer = &ref
	}
	return l
}

// PlaceOrder writes a new order into the first free slot
func (e *Engine) PlaceOrder(l *models.UserLedger, caller models.Identity, side models.Side, price, size uint64, expiryTimestamp int64) (*models.OrderPlaced, error) {
	if l.Authority != caller {
		return nil, ErrUnauthorized
	}
	idx := -1
	for i, o := range l.Orders {
		if !o.IsOpen() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNoFreeOrderSlot
	}
	l.Orders[idx] = models.Order{
		Side:              side,
		Price:             price,
		SizeRemaining:     size,
		CreationTimestamp: e.unixNow(),
		ExpiryTimestamp:   expiryTimestamp,
	}
	return &models.OrderPlaced{
		User:            l.Authority,
		OrderIndex:      uint8(idx),
		Side:            side,
		Price:           price,
		Size:            size,
		ExpiryTimestamp: expiryTimestamp,
	}, nil
}

// CancelOrder frees an open slot and credits the time it rested to the
// owner's liquidity score.
func (e *Engine) CancelOrder(l *models.UserLedger, caller models.Identity, index int) (*models.OrderCanceled, error) {
	if l.Authority != caller {
		return nil, ErrUnauthorized
	}
	if err := checkIndex(index); err != nil {
		return nil, err
	}
	o := l.Orders[index]
	if !o.IsOpen() {
		return nil, ErrNoOpenOrders
	}

	added := liquidityAccrual(o.CreationTimestamp, e.unixNow(), o.SizeRemaining, spanDiscard)
	l.Orders[index] = models.Order{}
	l.LiquidityScore = saturatingAdd(l.LiquidityScore, added)

	return &models.OrderCanceled{
		User:         l.Authority,
		OrderIndex:   uint8(index),
		CanceledSize: o.SizeRemaining,
	}, nil
}

// Settlement is the fee split of a single fill
type Settlement struct {
	TradeSize      uint64
	TakerFee       uint64
	MakerRebate    uint64
	NetFee         uint64
	ReferralReward uint64
}

// Settle computes the fee split of filling size against the market's rates.
// Amounts are computed wide and truncated to 64 bits; the net fee is taken
// before truncation. The referral reward is only computed when the taker has
// a referrer.
func Settle(market *models.MarketParameters, size uint64, hasReferrer bool) (Settlement, error) {
	s := Settlement{TradeSize: size}

	takerFee := applyBps(size, market.TakerFeeBps)
	makerRebate := applyBps(size, market.MakerRebateBps)
	if takerFee.Lt(makerRebate) {
		return s, ErrNegativeFee
	}
	netFee := new(uint256.Int).Sub(takerFee, makerRebate)
	s.TakerFee = low64(takerFee)
	s.MakerRebate = low64(makerRebate)
	s.NetFee = low64(netFee)

	if hasReferrer && market.ReferralBps > 0 {
		s.ReferralReward = low64(applyBps(size, market.ReferralBps))
	}
	return s, nil
}

// FillOrder settles a taker fill of up to fillSize against the maker's order in
// slot index. maker and taker may be the same ledger.
//
// The fill never exceeds the order's remaining size. A fill that empties the
// slot frees it and credits the maker's liquidity score with the trade size
// weighted by how long the order rested. The referral reward is reported on the
// event only; nothing is credited to the referrer.
func (e *Engine) FillOrder(market *models.MarketParameters, maker, taker *models.UserLedger, caller models.Identity, index int, fillSize uint64) (*models.OrderFilled, error) {
	if taker.Authority != caller {
		return nil, ErrUnauthorized
	}
	if err := checkIndex(index); err != nil {
		return nil, err
	}

	order := maker.Orders[index]
	if !order.IsOpen() {
		return nil, ErrNoOpenOrders
	}
	now := e.unixNow()
	if order.ExpiryTimestamp > 0 && now > order.ExpiryTimestamp {
		return nil, ErrOrderExpired
	}

	actual := min(fillSize, order.SizeRemaining)
	s, err := Settle(market, actual, taker.Referrer != nil)
	if err != nil {
		return nil, err
	}

	// Work on copies so a failed counter update leaves nothing half applied.
	m := *market
	mk := *maker
	tk := &mk
	if taker != maker {
		cp := *taker
		tk = &cp
	}

	remaining, err := checkedSub(order.SizeRemaining, actual)
	if err != nil {
		return nil, err
	}
	mk.Orders[index].SizeRemaining = remaining
	fullyFilled := remaining == 0

	if mk.MakerVolume, err = checkedAdd(mk.MakerVolume, actual); err != nil {
		return nil, err
	}
	if mk.MakerRebatesEarned, err = checkedAdd(mk.MakerRebatesEarned, s.MakerRebate); err != nil {
		return nil, err
	}
	if tk.TakerVolume, err = checkedAdd(tk.TakerVolume, actual); err != nil {
		return nil, err
	}
	if tk.TakerFeesPaid, err = checkedAdd(tk.TakerFeesPaid, s.TakerFee); err != nil {
		return nil, err
	}
	if m.TotalFeesCollected, err = checkedAdd(m.TotalFeesCollected, s.NetFee); err != nil {
		return nil, err
	}

	if fullyFilled {
		created := mk.Orders[index].CreationTimestamp
		mk.Orders[index] = models.Order{}
		mk.LiquidityScore = saturatingAdd(mk.LiquidityScore, liquidityAccrual(created, now, actual, spanSaturate))
	}

	*market = m
	*maker = mk
	if taker != maker {
		*taker = *tk
	}

	return &models.OrderFilled{
		Maker:          maker.Authority,
		Taker:          taker.Authority,
		OrderIndex:     uint8(index),
		TradeSize:      actual,
		MakerRebate:    s.MakerRebate,
		TakerFee:       s.TakerFee,
		ReferralReward: s.ReferralReward,
		FullyFilled:    fullyFilled,
	}, nil
}

// DistributeLiquidityRewards pays the user floor(score * rewardPool / globalScore)
// and consumes the whole score. globalScore and rewardPool come from the caller;
// nothing here aggregates scores across users. It returns a nil event and
// changes nothing when either score is zero.
func (e *Engine) DistributeLiquidityRewards(market *models.MarketParameters, l *models.UserLedger, caller models.Identity, globalScore, rewardPool uint64) (*models.LiquidityRewardsDistributed, error) {
	if market.Authority != caller {
		return nil, ErrUnauthorized
	}
	if l.LiquidityScore == 0 || globalScore == 0 {
		return nil, nil
	}
	share := mulDiv(l.LiquidityScore, rewardPool, globalScore)
	market.TotalLiquidityRewardsDistributed = saturatingAdd(market.TotalLiquidityRewardsDistributed, share)
	l.LiquidityScore = 0
	return &models.LiquidityRewardsDistributed{
		User:              l.Authority,
		DistributedAmount: share,
	}, nil
}

// WithdrawFees debits the market's collected fees. Moving the funds is left to
// the caller.
func (e *Engine) WithdrawFees(market *models.MarketParameters, caller models.Identity, amount uint64) (*models.FeesWithdrawn, error) {
	if market.Authority != caller {
		return nil, ErrUnauthorized
	}
	if amount > market.TotalFeesCollected {
		return nil, ErrInsufficientFunds
	}
	left, err := checkedSub(market.TotalFeesCollected, amount)
	if err != nil {
		return nil, err
	}
	market.TotalFeesCollected = left
	return &models.FeesWithdrawn{
		Authority: market.Authority,
		Amount:    amount,
	}, nil
}
