package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/db"
	"github.com/xtrntr/feeledger/internal/events"
	"github.com/xtrntr/feeledger/internal/ledger"
	"github.com/xtrntr/feeledger/internal/models"
)

// Publisher receives events after their operation has committed
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope)
}

// Service runs each ledger operation as one store transaction: load the
// records, apply the engine, persist, and only then publish events and
// transfer intents. Callers pass identities that the transport has already
// authenticated.
type Service struct {
	store     db.Store
	engine    *ledger.Engine
	bus       Publisher
	transfers Transferer
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a service
func New(store db.Store, engine *ledger.Engine, bus Publisher, transfers Transferer, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		bus:       bus,
		transfers: transfers,
		logger:    logger,
		now:       time.Now,
	}
}

func getMarket(ctx context.Context, tx db.Tx, id models.Identity) (*models.MarketParameters, error) {
	b, err := tx.Get(ctx, models.MarketKey(id))
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", id, err)
	}
	m := &models.MarketParameters{}
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("market %s: %w", id, err)
	}
	return m, nil
}

func putMarket(ctx context.Context, tx db.Tx, id models.Identity, m *models.MarketParameters) error {
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if err := tx.Put(ctx, models.MarketKey(id), b); err != nil {
		return fmt.Errorf("failed to save market %s: %w", id, err)
	}
	return nil
}

func getLedger(ctx context.Context, tx db.Tx, market, user models.Identity) (*models.UserLedger, error) {
	b, err := tx.Get(ctx, models.LedgerKey(market, user))
	if err != nil {
		return nil, fmt.Errorf("ledger of %s: %w", user, err)
	}
	l := &models.UserLedger{}
	if err := l.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("ledger of %s: %w", user, err)
	}
	return l, nil
}

func putLedger(ctx context.Context, tx db.Tx, market models.Identity, l *models.UserLedger) error {
	b, err := l.MarshalBinary()
	if err != nil {
		return err
	}
	if err := tx.Put(ctx, models.LedgerKey(market, l.Authority), b); err != nil {
		return fmt.Errorf("failed to save ledger of %s: %w", l.Authority, err)
	}
	return nil
}

// update runs fn in a write transaction and, once committed, publishes the
// event it returned (if any).
func (s *Service) update(ctx context.Context, op string, market, caller models.Identity, fn func(tx db.Tx) (models.Event, error)) error {
	var ev models.Event
	err := s.store.Update(ctx, func(tx db.Tx) error {
		var err error
		ev, err = fn(tx)
		return err
	})
	OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	if err != nil {
		fields := []zap.Field{
			zap.String("op", op),
			zap.Stringer("market", market),
			zap.Stringer("caller", caller),
			zap.Error(err),
		}
		if IsRejection(err) {
			s.logger.Debug("Operation rejected", fields...)
		} else {
			s.logger.Error("Operation failed", fields...)
		}
		return err
	}

	s.logger.Info("Operation committed",
		zap.String("op", op),
		zap.Stringer("market", market),
		zap.Stringer("caller", caller))
	if ev != nil {
		s.bus.Publish(ctx, events.NewEnvelope(market, ev, s.now()))
	}
	return nil
}

func (s *Service) transfer(ctx context.Context, intent TransferIntent) {
	if err := s.transfers.Transfer(ctx, intent); err != nil {
		s.logger.Error("Failed to signal transfer",
			zap.String("kind", string(intent.Kind)),
			zap.Stringer("market", intent.Market),
			zap.Stringer("recipient", intent.Recipient),
			zap.Uint64("amount", intent.Amount),
			zap.Error(err))
	}
}

// InitializeMarket creates a market owned by caller. The market id is derived
// from the caller and label, so a label can be used once per authority.
func (s *Service) InitializeMarket(ctx context.Context, caller models.Identity, label string, makerRebateBps, takerFeeBps, referralBps uint16) (models.Identity, *models.MarketParameters, error) {
	id := models.DeriveMarketID(caller, label)
	var out *models.MarketParameters
	err := s.update(ctx, "initialize_market", id, caller, func(tx db.Tx) (models.Event, error) {
		m, err := s.engine.InitializeMarket(caller, makerRebateBps, takerFeeBps, referralBps)
		if err != nil {
			return nil, err
		}
		b, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := tx.Create(ctx, models.MarketKey(id), b); err != nil {
			return nil, fmt.Errorf("market %s: %w", id, err)
		}
		out = m
		return nil, nil
	})
	if err != nil {
		return id, nil, err
	}
	return id, out, nil
}

// UpdateFeeParameters replaces the market's fee rates
func (s *Service) UpdateFeeParameters(ctx context.Context, market, caller models.Identity, makerRebateBps, takerFeeBps, referralBps uint16) (*models.MarketParameters, error) {
	var out *models.MarketParameters
	err := s.update(ctx, "update_fee_parameters", market, caller, func(tx db.Tx) (models.Event, error) {
		m, err := getMarket(ctx, tx, market)
		if err != nil {
			return nil, err
		}
		ev, err := s.engine.UpdateFeeParameters(m, caller, makerRebateBps, takerFeeBps, referralBps)
		if err != nil {
			return nil, err
		}
		if err := putMarket(ctx, tx, market, m); err != nil {
			return nil, err
		}
		out = m
		return ev, nil
	})
	return out, err
}

// RegisterUser creates the caller's ledger in an existing market
func (s *Service) RegisterUser(ctx context.Context, market, caller models.Identity, referrer *models.Identity) (*models.UserLedger, error) {
	var out *models.UserLedger
	err := s.update(ctx, "register_user", market, caller, func(tx db.Tx) (models.Event, error) {
		if _, err := getMarket(ctx, tx, market); err != nil {
			return nil, err
		}
		l := s.engine.RegisterUser(caller, referrer)
		b, err := l.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := tx.Create(ctx, models.LedgerKey(market, caller), b); err != nil {
			return nil, fmt.Errorf("ledger of %s: %w", caller, err)
		}
		out = l
		return nil, nil
	})
	return out, err
}

// PlaceOrder writes a new order into the caller's first free slot
func (s *Service) PlaceOrder(ctx context.Context, market, caller models.Identity, side models.Side, price, size uint64, expiryTimestamp int64) (*models.OrderPlaced, error) {
	var out *models.OrderPlaced
	err := s.update(ctx, "place_order", market, caller, func(tx db.Tx) (models.Event, error) {
		l, err := getLedger(ctx, tx, market, caller)
		if err != nil {
			return nil, err
		}
		ev, err := s.engine.PlaceOrder(l, caller, side, price, size, expiryTimestamp)
		if err != nil {
			return nil, err
		}
		if err := putLedger(ctx, tx, market, l); err != nil {
			return nil, err
		}
		out = ev
		return ev, nil
	})
	return out, err
}

// CancelOrder frees one of the caller's slots
func (s *Service) CancelOrder(ctx context.Context, market, caller models.Identity, index int) (*models.OrderCanceled, error) {
	var out *models.OrderCanceled
	err := s.update(ctx, "cancel_order", market, caller, func(tx db.Tx) (models.Event, error) {
		l, err := getLedger(ctx, tx, market, caller)
		if err != nil {
			return nil, err
		}
		ev, err := s.engine.CancelOrder(l, caller, index)
		if err != nil {
			return nil, err
		}
		if err := putLedger(ctx, tx, market, l); err != nil {
			return nil, err
		}
		out = ev
		return ev, nil
	})
	return out, err
}

// FillOrder settles the caller (taker) filling up to size of maker's order in
// slot index.
func (s *Service) FillOrder(ctx context.Context, market, caller, maker models.Identity, index int, size uint64) (*models.OrderFilled, error) {
	var (
		out    *models.OrderFilled
		netFee uint64
	)
	err := s.update(ctx, "fill_order", market, caller, func(tx db.Tx) (models.Event, error) {
		m, err := getMarket(ctx, tx, market)
		if err != nil {
			return nil, err
		}
		taker, err := getLedger(ctx, tx, market, caller)
		if err != nil {
			return nil, err
		}
		makerLedger := taker
		if maker != caller {
			if makerLedger, err = getLedger(ctx, tx, market, maker); err != nil {
				return nil, err
			}
		}

		collected := m.TotalFeesCollected
		ev, err := s.engine.FillOrder(m, makerLedger, taker, caller, index, size)
		if err != nil {
			return nil, err
		}
		netFee = m.TotalFeesCollected - collected

		if err := putMarket(ctx, tx, market, m); err != nil {
			return nil, err
		}
		if err := putLedger(ctx, tx, market, makerLedger); err != nil {
			return nil, err
		}
		if makerLedger != taker {
			if err := putLedger(ctx, tx, market, taker); err != nil {
				return nil, err
			}
		}
		out = ev
		return ev, nil
	})
	if err == nil {
		FillVolumeTotal.Add(float64(out.TradeSize))
		NetFeesTotal.Add(float64(netFee))
	}
	return out, err
}

// DistributeLiquidityRewards pays user its share of rewardPool and resets its
// score. It returns a nil event when there was nothing to distribute.
func (s *Service) DistributeLiquidityRewards(ctx context.Context, market, caller, user models.Identity, globalScore, rewardPool uint64) (*models.LiquidityRewardsDistributed, error) {
	var out *models.LiquidityRewardsDistributed
	err := s.update(ctx, "distribute_liquidity_rewards", market, caller, func(tx db.Tx) (models.Event, error) {
		m, err := getMarket(ctx, tx, market)
		if err != nil {
			return nil, err
		}
		l, err := getLedger(ctx, tx, market, user)
		if err != nil {
			return nil, err
		}
		ev, err := s.engine.DistributeLiquidityRewards(m, l, caller, globalScore, rewardPool)
		if err != nil || ev == nil {
			return nil, err
		}
		if err := putMarket(ctx, tx, market, m); err != nil {
			return nil, err
		}
		if err := putLedger(ctx, tx, market, l); err != nil {
			return nil, err
		}
		out = ev
		return ev, nil
	})
	if err != nil || out == nil {
		return nil, err
	}
	RewardsDistributedTotal.Add(float64(out.DistributedAmount))
	s.transfer(ctx, TransferIntent{
		Kind:      IntentLiquidityReward,
		Market:    market,
		Recipient: user,
		Amount:    out.DistributedAmount,
	})
	return out, nil
}

// WithdrawFees debits the market's collected fees and signals the transfer
// to the authority.
func (s *Service) WithdrawFees(ctx context.Context, market, caller models.Identity, amount uint64) (*models.FeesWithdrawn, error) {
	var out *models.FeesWithdrawn
	err := s.update(ctx, "withdraw_fees", market, caller, func(tx db.Tx) (models.Event, error) {
		m, err := getMarket(ctx, tx, market)
		if err != nil {
			return nil, err
		}
		ev, err := s.engine.WithdrawFees(m, caller, amount)
		if err != nil {
			return nil, err
		}
		if err := putMarket(ctx, tx, market, m); err != nil {
			return nil, err
		}
		out = ev
		return ev, nil
	})
	if err != nil {
		return nil, err
	}
	FeesWithdrawnTotal.Add(float64(amount))
	s.transfer(ctx, TransferIntent{
		Kind:      IntentFeeWithdrawal,
		Market:    market,
		Recipient: caller,
		Amount:    amount,
	})
	return out, nil
}

// Market returns a market's parameters
func (s *Service) Market(ctx context.Context, market models.Identity) (*models.MarketParameters, error) {
	var out *models.MarketParameters
	err := s.store.View(ctx, func(tx db.Tx) error {
		var err error
		out, err = getMarket(ctx, tx, market)
		return err
	})
	return out, err
}

// Ledger returns a user's ledger in a market
func (s *Service) Ledger(ctx context.Context, market, user models.Identity) (*models.UserLedger, error) {
	var out *models.UserLedger
	err := s.store.View(ctx, func(tx db.Tx) error {
		var err error
		out, err = getLedger(ctx, tx, market, user)
		return err
	})
	return out, err
}
