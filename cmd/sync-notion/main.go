package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/txgroup/internal/app"
	"github.com/dvloznov/txgroup/internal/config"
	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/notionsync"
)

func main() {
	// Parse CLI flags
	configPath := flag.String("config", os.Getenv("TXGROUP_CONFIG"), "Path to a YAML config file")
	batchID := flag.String("batch", "", "Only export this batch (default: every mapped batch)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (overrides NOTION_DATABASE_ID)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *notionDBID != "" {
		cfg.Notion.DatabaseID = *notionDBID
	}

	// Initialize structured logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if !cfg.Notion.IsConfigured() {
		log.Fatal().Msg("Error: NOTION_TOKEN and NOTION_DATABASE_ID are required")
	}

	// Create context with timeout so the sync doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	var batches []*domain.ImportBatch
	if *batchID != "" {
		b, err := a.Service.GetBatch(ctx, *batchID)
		if err != nil {
			log.Fatal().Err(err).Str("batch_id", *batchID).Msg("Failed to load batch")
		}
		batches = append(batches, b)
	} else {
		batches, err = a.Service.ListBatches(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list batches")
		}
	}

	notionClient := notionsync.NewNotionClient(cfg.Notion.Token, cfg.Notion.DatabaseID)

	var total notionsync.Stats
	for _, b := range batches {
		if !b.IsMapped {
			log.Info().Str("batch_id", b.ID).Msg("Skipping unmapped batch")
			continue
		}
		stats, err := notionsync.ExportBatch(ctx, a.Repo, notionClient, b.ID, *dryRun)
		if err != nil {
			log.Error().Err(err).Str("batch_id", b.ID).Msg("Batch export failed")
			total.Failed++
			continue
		}
		total.Created += stats.Created
		total.Updated += stats.Updated
		total.Archived += stats.Archived
		total.Failed += stats.Failed
	}

	log.Info().
		Int("batches", len(batches)).
		Int("created", total.Created).
		Int("updated", total.Updated).
		Int("archived", total.Archived).
		Int("failed", total.Failed).
		Bool("dry_run", *dryRun).
		Msg("Notion sync finished")

	if total.Failed > 0 {
		os.Exit(1)
	}
	fmt.Println("Sync completed successfully.")
}
