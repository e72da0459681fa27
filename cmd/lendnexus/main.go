// cmd/lendnexus/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	log "github.com/sirupsen/logrus"

	"lendnexus/internal/circulation"
	"lendnexus/internal/config"
	"lendnexus/internal/domain"
	"lendnexus/internal/feed"
	"lendnexus/internal/logging"
	"lendnexus/internal/server"
	"lendnexus/internal/store"
	"lendnexus/internal/store/breaker"
	"lendnexus/internal/store/memory"
	"lendnexus/internal/store/postgres"
	"lendnexus/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults and environment when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	loc, err := cfg.Lending.Location()
	if err != nil {
		log.Fatalf("Invalid lending timezone: %v", err)
	}

	openRentals := feed.New[*domain.Rental](domain.KindRental, func(r *domain.Rental) bool { return !r.Closed() })
	err = openRentals.Sync(ctx, st, func(ctx context.Context) ([]*domain.Rental, error) {
		return store.Collect(ctx, st.ListRentals, store.Query{OpenOnly: true})
	})
	if err != nil {
		log.Fatalf("Failed to load open rentals: %v", err)
	}

	services := server.Wire(st, server.Options{
		Clock:                  circulation.SystemClock{Location: loc},
		DueSoonDays:            cfg.Lending.DueSoonDays,
		RentalView:             openRentals,
		RegistrationsPerMinute: cfg.Membership.RegistrationsPerMinute,
		CodeAttemptsPerMinute:  cfg.Reservation.CodeAttemptsPerMinute,
	})

	srv := &http.Server{
		Addr:    cfg.GetServerAddress(),
		Handler: server.NewRouter(services),
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":     srv.Addr,
			"store":    cfg.Store.Driver,
			"timezone": loc.String(),
		}).Info("Starting lending service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Error("Tracer shutdown failed")
	}
}

// openStore returns the configured store behind a circuit breaker.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		log.Info("Database connection established")
		closeFn := func() {
			if err := pg.Close(); err != nil {
				log.WithError(err).Warn("Closing database")
			}
		}
		return breaker.New(pg, "records", cfg.Store.Breaker.Settings()), closeFn, nil
	default:
		log.Warn("Using in-memory store; records are lost on exit")
		return breaker.New(memory.New(), "records", cfg.Store.Breaker.Settings()), func() {}, nil
	}
}
