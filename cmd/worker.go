package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/horizon/services/ledger/eventstore"
	"example.com/horizon/services/ledger/messaging"
	"example.com/horizon/services/ledger/models"
	"example.com/horizon/services/ledger/projections"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the outbox relay worker",
	Run:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting worker")

	// Connect to database. The worker runs under the maintenance role that
	// is exempt from row-filtering policies: the relay reads all tenants'
	// unprocessed events and only forwards them.
	db, err := gorm.Open(postgres.Open(cfg.DBSource), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if cfg.EnableMigrations {
		if err := db.AutoMigrate(&models.Event{}, &models.Snapshot{}); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	outboxStore := eventstore.NewOutboxStore(db)

	// Initialize Azure Service Bus client
	azureClient, err := messaging.NewAzureClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Azure Service Bus")
	}

	// Initialize Elasticsearch indexer
	esClient, err := projections.NewElasticsearchClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Elasticsearch")
	}
	if err := projections.EnsureIndices(esClient, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure Elasticsearch indices")
	}
	indexer := projections.NewIndexer(esClient, cfg)

	relay := messaging.NewRelay(outboxStore, azureClient, indexer, cfg.RelayBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Dur("interval", cfg.RelayInterval).Msg("Starting outbox relay")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.RelayInterval),
			gocron.NewTask(func() {
				if err := relay.RunOnce(ctx); err != nil {
					log.Error().Err(err).Msg("Relay batch failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
	}

	if err := azureClient.Close(context.Background()); err != nil {
		log.Error().Err(err).Msg("Error closing Azure Service Bus client")
	}

	log.Info().Msg("Worker exited properly")
}
