package main

import (
	"context"
	"flag"
	"os"

	bq "github.com/dvloznov/ledger-import/internal/infra/bigquery"
	"github.com/dvloznov/ledger-import/internal/logger"
)

var (
	projectID = flag.String("project", os.Getenv("LEDGER_LEDGER_PROJECT"), "GCP project ID (required)")
	datasetID = flag.String("dataset", "ledger", "BigQuery dataset ID")
	appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	logLevel  = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	log := logger.New(*logLevel)
	ctx := logger.WithContext(context.Background(), log)

	// Validate required flags
	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
	}

	store, err := bq.NewStore(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer store.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	migrations, err := bq.Migrations(*projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found bundled migrations")

	applied, err := store.Migrate(ctx, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Int("applied", applied).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("Database is up to date")
		return
	}
	log.Info().Int("applied", applied).Msg("Migrations completed successfully")
}
