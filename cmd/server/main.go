package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/api"
	"github.com/xtrntr/feeledger/internal/auth"
	"github.com/xtrntr/feeledger/internal/config"
	"github.com/xtrntr/feeledger/internal/db"
	"github.com/xtrntr/feeledger/internal/events"
	"github.com/xtrntr/feeledger/internal/ledger"
	"github.com/xtrntr/feeledger/internal/logger"
	"github.com/xtrntr/feeledger/internal/service"
)

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

// Main entry point: sets up storage, the ledger service and the HTTP server
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.NewLogger(cfg.Log.Level)
	defer lg.Sync()

	ctx := context.Background()

	// Initialize storage
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		lg.Fatal("Failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer store.Close()

	// Event sinks: log, websocket feed and optionally Kafka
	hub := events.NewHub(lg)
	sinks := []events.Sink{events.NewLogSink(lg), hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		lg.Info("Publishing events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}
	bus := events.NewBus(lg, sinks...)

	svc := service.New(store, ledger.NewEngine(nil), bus, service.NewLogTransferer(lg), lg)
	authService := auth.NewAuthService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.MaxClockSkew)
	handler := api.NewHandler(svc, authService, lg)

	// Set up HTTP router
	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket event feed
	r.Get("/ws", hub.ServeHTTP)
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	handler.Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("Starting server", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("HTTP server shutdown error", zap.Error(err))
	}
	lg.Info("Fee ledger stopped")
}
