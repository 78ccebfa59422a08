package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitnessquest/server/internal/badges"
	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/config"
	"github.com/fitnessquest/server/internal/database"
	"github.com/fitnessquest/server/internal/logger"
	"github.com/fitnessquest/server/internal/memstore"
	"github.com/fitnessquest/server/internal/monster"
	"github.com/fitnessquest/server/internal/namefilter"
	"github.com/fitnessquest/server/internal/notify"
	"github.com/fitnessquest/server/internal/server"
	"github.com/fitnessquest/server/internal/stats"
	"github.com/fitnessquest/server/internal/victory"
)

// backend is the store questd runs against.
type backend interface {
	badges.Store
	CheckIns() checkin.Store
	Victories() victory.Store
}

func main() {
	configFile := flag.String("config", "data/game.yaml", "Path to game config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	partiesFile := flag.String("parties", "", "Path to parties YAML file (overrides the config's catalog entry)")
	seed := flag.Int64("seed", 0, "Dice seed (default: random)")
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, err := logger.LoadConfig(*loggingConfig)
	if err != nil {
		log.Printf("Failed to load logging config, using defaults: %v", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Info("Starting questd")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	diceSeed := *seed
	if diceSeed == 0 {
		diceSeed = stats.RandomSeed()
		logger.Info("Dice seed selected", "seed", diceSeed, "random", true)
	} else {
		logger.Info("Dice seed selected", "seed", diceSeed, "random", false)
	}

	catalog := monster.DefaultCatalog()
	if cfg.Catalog.Monsters != "" {
		if catalog, err = monster.LoadCatalog(cfg.Catalog.Monsters); err != nil {
			log.Fatalf("Failed to load monsters: %v", err)
		}
	}
	logger.Info("Monsters loaded", "count", len(catalog.Monsters))

	var (
		store   backend
		parties partyStore
	)
	switch cfg.Store {
	case config.StoreMemory:
		mem := memstore.New()
		store = mem
		parties = memoryParties(mem)
		logger.Warning("Using the in-memory store; state is lost on shutdown")
	default:
		db, err := database.OpenWithConfig(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		store = db
		parties = databaseParties(db)
		logger.Info("Database initialized", "driver", cfg.Database.Driver)
	}

	evaluator := badges.NewEvaluator(store)
	rewards := victory.NewProcessor(store.Victories(), cfg.Rules, evaluator)
	rot := newRotation(rewards, parties, catalog)

	rosterPath := *partiesFile
	if rosterPath == "" {
		rosterPath = cfg.Catalog.Parties
	}
	if rosterPath != "" {
		roster, err := loadRoster(rosterPath)
		if err != nil {
			log.Fatalf("Failed to load parties: %v", err)
		}
		if err := seedRoster(context.Background(), roster, parties, rot, cfg.Rules, namefilter.New(cfg.Names)); err != nil {
			log.Fatalf("Failed to seed parties: %v", err)
		}
		logger.Info("Parties loaded", "count", len(roster.Parties))
	}

	hub := notify.NewHub(cfg.WebSocket.SendBuffer, cfg.WebSocket.WriteTimeout)
	service := checkin.NewService(store.CheckIns(), cfg.Rules,
		checkin.WithNotifier(hub),
		checkin.WithVictory(rot),
		checkin.WithBadges(evaluator),
		checkin.WithRoller(stats.NewRand(diceSeed)),
	)

	srv := server.NewServer(cfg, service, hub)
	if len(cfg.WebSocket.AllowedOrigins) == 0 {
		logger.Info("WebSocket CORS policy", "mode", "same-origin")
	} else if len(cfg.WebSocket.AllowedOrigins) == 1 && cfg.WebSocket.AllowedOrigins[0] == "*" {
		logger.Warning("WebSocket CORS allows all origins (not recommended for production)")
	} else {
		logger.Info("WebSocket CORS policy", "allowed_origins", cfg.WebSocket.AllowedOrigins)
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	logger.Info("Press Ctrl+C to shutdown")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown incomplete", "error", err)
	}
	logger.Info("Server stopped")
}
