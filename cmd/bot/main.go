package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rmolina/gamebind/internal/bot"
	"github.com/rmolina/gamebind/internal/config"
	"github.com/rmolina/gamebind/pkg/gameapi"
	bindingRepo "github.com/rmolina/gamebind/pkg/repositories/binding"
	ledgerRepo "github.com/rmolina/gamebind/pkg/repositories/ledger"
	"github.com/rmolina/gamebind/pkg/scheduler"
	bindingSvc "github.com/rmolina/gamebind/pkg/services/binding"
	checkinSvc "github.com/rmolina/gamebind/pkg/services/checkin"
	ledgerSvc "github.com/rmolina/gamebind/pkg/services/ledger"
	redemptionSvc "github.com/rmolina/gamebind/pkg/services/redemption"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// Pick the storage backend
	var bindings bindingRepo.Repository
	var ledger ledgerRepo.Repository

	switch cfg.StorageType {
	case "sqlite":
		dbPath := filepath.Join(cfg.DataDir, "gamebind.db")
		log.Printf("Initializing SQLite storage at %s", dbPath)

		bindingStore, err := bindingRepo.NewSQLiteRepository(dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize binding store: %v", err)
		}
		defer bindingStore.Close()
		bindings = bindingStore

		ledgerStore, err := ledgerRepo.NewSQLiteRepository(dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize ledger store: %v", err)
		}
		defer ledgerStore.Close()
		ledger = ledgerStore

	case "postgres":
		log.Println("Initializing Postgres ledger storage")
		ledgerStore, err := ledgerRepo.NewPostgresRepository(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize ledger store: %v", err)
		}
		defer ledgerStore.Close()
		ledger = ledgerStore

		// Bindings are small; they stay on the local SQLite file even when
		// the ledger lives in Postgres
		bindingStore, err := bindingRepo.NewSQLiteRepository(filepath.Join(cfg.DataDir, "gamebind.db"))
		if err != nil {
			log.Fatalf("Failed to initialize binding store: %v", err)
		}
		defer bindingStore.Close()
		bindings = bindingStore

	default:
		log.Println("Using in-memory storage (data will be lost on restart)")
		bindings = bindingRepo.NewMemoryRepository()
		ledger = ledgerRepo.NewMemoryRepository()
	}

	// External game API client
	api := gameapi.NewHTTPClient(cfg.GameAPIURL, cfg.GameAPIKey, cfg.RechargeTimeout)

	// Engine services
	bindingService := bindingSvc.NewService(bindings, api)
	ledgerService := ledgerSvc.NewService(ledger)
	checkinService := checkinSvc.NewService(ledgerService, cfg.Rewards)
	redemptionService := redemptionSvc.NewService(bindingService, ledgerService, ledger, api, cfg.ExchangeRatio, nil)

	// Optional Elasticsearch archive for terminal redemptions
	var archive *ledgerRepo.ElasticsearchArchive
	if cfg.ElasticURL != "" {
		esConfig := ledgerRepo.DefaultElasticsearchConfig()
		esConfig.URL = cfg.ElasticURL
		esConfig.Index = cfg.ElasticIndex

		archive, err = ledgerRepo.NewElasticsearchArchive(esConfig)
		if err != nil {
			log.Printf("Failed to initialize Elasticsearch archive: %v", err)
			log.Println("Continuing without redemption archival")
			archive = nil
		}
	}

	// Background reconciliation tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := scheduler.NewReconciliationScheduler(ledger, archive, cfg.AmbiguousAge, cfg.ArchiveInterval)
	reconciler.Start(ctx)
	defer reconciler.Stop()

	// Discord command surface
	discordBot, err := bot.New(cfg, bindingService, ledgerService, checkinService, redemptionService)
	if err != nil {
		log.Fatalf("Error creating bot: %v", err)
	}

	if err := discordBot.Start(); err != nil {
		log.Fatalf("Error starting bot: %v", err)
	}

	log.Println("Bot is running. Press Ctrl+C to exit")

	// Wait for interrupt signal to gracefully shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	discordBot.Shutdown()
}
