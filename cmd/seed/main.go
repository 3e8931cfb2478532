package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/config"
	"github.com/xtrntr/feeledger/internal/db"
	"github.com/xtrntr/feeledger/internal/events"
	"github.com/xtrntr/feeledger/internal/ledger"
	"github.com/xtrntr/feeledger/internal/logger"
	"github.com/xtrntr/feeledger/internal/models"
	"github.com/xtrntr/feeledger/internal/service"
)

const marketLabel = "SOL-USDC"

type account struct {
	name string
	seed []byte
	id   models.Identity
}

// newAccount derives a fixed ed25519 key so seeded identities are stable
// across runs.
func newAccount(name string) account {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, name)
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	a := account{name: name, seed: seed}
	copy(a.id[:], pub)
	return a
}

func openStore(ctx context.Context, cfg config.StoreConfig) (db.Store, error) {
	if cfg.Driver == config.DriverPostgres {
		database, err := db.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	}
	return db.NewBoltDB(cfg.BoltPath)
}

// Seed the store with a demo market, two traders and resting orders
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.NewLogger(cfg.Log.Level)
	defer lg.Sync()

	if err := run(context.Background(), cfg, lg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
}

// run seeds the configured store. Every exit path closes the store.
func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	svc := service.New(store, ledger.NewEngine(nil), events.NewBus(lg, events.NewLogSink(lg)),
		service.NewLogTransferer(lg), lg)

	operator := newAccount("operator")
	trader1 := newAccount("trader1")
	trader2 := newAccount("trader2")

	market, _, err := svc.InitializeMarket(ctx, operator.id, marketLabel, 2, 5, 1)
	if errors.Is(err, db.ErrExists) {
		fmt.Printf("Market %s already exists. No need to seed.\n", market)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create market: %w", err)
	}

	if _, err := svc.RegisterUser(ctx, market, trader1.id, nil); err != nil {
		return fmt.Errorf("failed to register trader1: %w", err)
	}
	if _, err := svc.RegisterUser(ctx, market, trader2.id, &operator.id); err != nil {
		return fmt.Errorf("failed to register trader2: %w", err)
	}

	expiry := time.Now().Add(24 * time.Hour).Unix()
	orders := []struct {
		side  models.Side
		price uint64
		size  uint64
	}{
		{models.SideBid, 99, 1_000_000},
		{models.SideBid, 98, 2_500_000},
		{models.SideAsk, 101, 1_000_000},
		{models.SideAsk, 103, 4_000_000},
	}
	for _, o := range orders {
		if _, err := svc.PlaceOrder(ctx, market, trader1.id, o.side, o.price, o.size, expiry); err != nil {
			return fmt.Errorf("failed to place order: %w", err)
		}
	}

	// One partial fill so the market has collected fees
	if _, err := svc.FillOrder(ctx, market, trader2.id, trader1.id, 2, 400_000); err != nil {
		lg.Warn("Failed to seed fill", zap.Error(err))
	}

	fmt.Printf("Seeded market %s (%s)\n", market, marketLabel)
	for _, a := range []account{operator, trader1, trader2} {
		fmt.Printf("  %-8s identity=%s seed=%s\n", a.name, a.id, hex.EncodeToString(a.seed))
	}
	return nil
}
