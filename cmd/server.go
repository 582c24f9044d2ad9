package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/horizon/services/ledger/api"
	"example.com/horizon/services/ledger/auth"
	"example.com/horizon/services/ledger/cache"
	"example.com/horizon/services/ledger/database"
	"example.com/horizon/services/ledger/eventstore"
	"example.com/horizon/services/ledger/handlers"
	"example.com/horizon/services/ledger/models"
	"example.com/horizon/services/ledger/projections"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting server")

	// Connect to database. TranslateError turns the version uniqueness
	// violation into gorm.ErrDuplicatedKey, which the event store maps to
	// a concurrency conflict.
	db, err := gorm.Open(postgres.Open(cfg.DBSource), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Auto migrate tables
	if cfg.EnableMigrations {
		if err := db.AutoMigrate(&models.Event{}, &models.Snapshot{}); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	// Every request-path query runs on a tenant-bound connection
	provider := database.NewTenantConnectionProvider(db, database.PostgresSessionBinder)

	// Initialize stores
	eventStore := eventstore.NewGormEventStore(provider)
	snapshotStore := eventstore.NewGormSnapshotStore(provider)

	// Initialize snapshot cache
	snapshotCache, err := cache.NewSnapshotCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Redis")
	}

	// Initialize token validator
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT secret is not configured")
	}
	tokenValidator := auth.NewTokenValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	// Initialize command handlers
	accountHandler := handlers.NewAccountHandler(eventStore, snapshotStore, snapshotCache, cfg.SnapshotFrequency)

	// Attach the audit sink for access-denied decisions. The server can
	// run without it; denials still land in the application log.
	if esClient, err := projections.NewElasticsearchClient(cfg); err != nil {
		log.Warn().Err(err).Msg("Audit indexing disabled, Elasticsearch unavailable")
	} else {
		accountHandler.SetAuditor(projections.NewIndexer(esClient, cfg))
	}

	// Initialize server
	server := api.NewServer(cfg, tokenValidator, accountHandler)

	// Start HTTP server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
