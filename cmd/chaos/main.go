// cmd/chaos/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	log "github.com/sirupsen/logrus"

	"lendnexus/internal/chaos"
	"lendnexus/internal/circulation"
	"lendnexus/internal/config"
	"lendnexus/internal/logging"
	"lendnexus/internal/server"
	"lendnexus/internal/store"
	"lendnexus/internal/store/memory"
	"lendnexus/internal/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	duration := flag.Duration("duration", chaos.DefaultPacing.Duration, "Observation window of each experiment")
	latency := flag.Duration("latency", 250*time.Millisecond, "Store latency injected by the latency experiment")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	loc, err := cfg.Lending.Location()
	if err != nil {
		log.Fatalf("Invalid lending timezone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store = memory.New()
	if cfg.Store.Driver == config.DriverPostgres {
		pg, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		st = pg
	}

	target := chaos.NewTarget(st, cfg.Store.Breaker.Settings(), server.Options{
		Clock:                  circulation.SystemClock{Location: loc},
		DueSoonDays:            cfg.Lending.DueSoonDays,
		RegistrationsPerMinute: -1,
	})
	pacing := chaos.Pacing{Duration: *duration, Interval: chaos.DefaultPacing.Interval}

	engine := chaos.NewEngine()
	engine.Register(chaos.Experiments(target, pacing, *latency)...)

	results := engine.RunGameDay(ctx, chaos.GameDay{
		Name:      "Weekly Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
		Pause:     5 * time.Second,
	})

	if err := json.NewEncoder(os.Stdout).Encode(results); err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}
	for _, r := range results {
		if !r.HypothesisHeld {
			os.Exit(1)
		}
	}
}
