package main

import (
	"fmt"
	"path/filepath"

	"github.com/dvloznov/txgroup/internal/notionsync"
	"github.com/dvloznov/txgroup/internal/source"
)

func runImport(args []string) {
	fs, configPath := newFlagSet("import")
	filePath := fs.String("file", "", "Path to the CSV file, or a gs:// URI")
	bucket := fs.String("bucket", "", "Upload the file to this GCS bucket first (defaults to config gcs.bucket when -upload is set)")
	upload := fs.Bool("upload", false, "Upload the local file to GCS before registering it")
	object := fs.String("object", "", "GCS object name (defaults to filename)")
	mapSpec := fs.String("map", "", "Map right away, e.g. date=Data,amount=Kwota,description=Opis")
	fs.Parse(args)

	if *filePath == "" {
		errc("Usage: cli import -file PATH [-upload [-bucket NAME]] [-map SPEC]\n")
		return
	}

	ctx, log, a := setup(*configPath)
	defer a.Close()

	uri := *filePath
	if *bucket == "" {
		*bucket = a.Config.GCS.Bucket
	}
	if *upload {
		if *bucket == "" {
			log.Fatal().Msg("Error: -upload needs -bucket or gcs.bucket in config")
		}
		if *object == "" {
			*object = filepath.Base(*filePath)
		}
		log.Info().Str("bucket", *bucket).Str("object", *object).Str("file", *filePath).Msg("Uploading file to GCS")

		var err error
		uri, err = source.NewGCSStorageService().Upload(ctx, *bucket, *object, *filePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
	}

	batch, err := a.Service.RegisterBatch(ctx, uri, filepath.Base(*filePath))
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}
	printBatch(batch)

	if *mapSpec == "" {
		fmt.Printf("\nNext: cli map -batch %s -map date=...,amount=...,description=...\n", batch.ID)
		return
	}

	m, err := parseMapping(*mapSpec)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid mapping")
	}
	result, err := a.Service.MapBatch(ctx, batch.ID, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Mapping failed")
	}
	printMapResult(result)
}

func runBatches(args []string) {
	fs, configPath := newFlagSet("batches")
	fs.Parse(args)

	ctx, log, a := setup(*configPath)
	defer a.Close()

	batches, err := a.Service.ListBatches(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list batches")
	}
	if len(batches) == 0 {
		fmt.Println("No batches.")
		return
	}
	for _, b := range batches {
		printBatch(b)
	}
}

func runMap(args []string) {
	fs, configPath := newFlagSet("map")
	batchID := fs.String("batch", "", "Batch ID")
	mapSpec := fs.String("map", "", "Column mapping, e.g. date=Data,amount=Kwota,description=Opis,type=Typ")
	fs.Parse(args)

	if *batchID == "" || *mapSpec == "" {
		errc("Usage: cli map -batch ID -map SPEC\n")
		return
	}

	m, err := parseMapping(*mapSpec)
	if err != nil {
		errc("Invalid mapping: %v\n", err)
		return
	}

	ctx, log, a := setup(*configPath)
	defer a.Close()

	result, err := a.Service.MapBatch(ctx, *batchID, m)
	if err != nil {
		log.Fatal().Err(err).Str("batch_id", *batchID).Msg("Mapping failed")
	}
	printMapResult(result)
}

func runGroups(args []string) {
	fs, configPath := newFlagSet("groups")
	batchID := fs.String("batch", "", "Batch ID")
	fs.Parse(args)

	if *batchID == "" {
		errc("Usage: cli groups -batch ID\n")
		return
	}

	ctx, log, a := setup(*configPath)
	defer a.Close()

	groups, err := a.Service.Groups(ctx, *batchID)
	if err != nil {
		log.Fatal().Err(err).Str("batch_id", *batchID).Msg("Failed to group records")
	}
	printGroups(groups)
}

func runSummary(args []string) {
	fs, configPath := newFlagSet("summary")
	batchID := fs.String("batch", "", "Batch ID")
	fs.Parse(args)

	if *batchID == "" {
		errc("Usage: cli summary -batch ID\n")
		return
	}

	ctx, log, a := setup(*configPath)
	defer a.Close()

	s, err := a.Service.Summary(ctx, *batchID)
	if err != nil {
		log.Fatal().Err(err).Str("batch_id", *batchID).Msg("Failed to summarize batch")
	}
	printSummary(s)
}

func runCategories(args []string) {
	fs, configPath := newFlagSet("categories")
	fs.Parse(args)

	ctx, log, a := setup(*configPath)
	defer a.Close()

	cats, err := a.Service.ListCategories(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list categories")
	}
	printCategories(cats)
}

func runAssign(args []string) {
	fs, configPath := newFlagSet("assign")
	batchID := fs.String("batch", "", "Batch ID")
	category := fs.String("category", "", "Category ID or name")
	records := fs.String("records", "", "Comma separated record IDs")
	fs.Parse(args)

	recordIDs := splitIDs(*records)
	if *batchID == "" || *category == "" || len(recordIDs) == 0 {
		errc("Usage: cli assign -batch ID -category NAME -records ID,ID\n")
		return
	}

	ctx, log, a := setup(*configPath)
	defer a.Close()

	cats, err := a.Service.ListCategories(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list categories")
	}
	cat, ok := findCategory(cats, *category)
	if !ok {
		log.Fatal().Str("category", *category).Msg("Unknown category")
	}

	if err := a.Service.AssignCategory(ctx, *batchID, recordIDs, cat.ID); err != nil {
		log.Fatal().Err(err).Str("batch_id", *batchID).Msg("Failed to assign category")
	}
	okc("Assigned %s to %d record(s)\n", cat.Name, len(recordIDs))
}

func runExportNotion(args []string) {
	fs, configPath := newFlagSet("export-notion")
	batchID := fs.String("batch", "", "Batch ID")
	databaseID := fs.String("database", "", "Notion database ID (defaults to config notion.database_id)")
	dryRun := fs.Bool("dry-run", false, "Only report what would change")
	fs.Parse(args)

	if *batchID == "" {
		errc("Usage: cli export-notion -batch ID [-database ID] [-dry-run]\n")
		return
	}

	ctx, log, a := setup(*configPath)
	defer a.Close()

	notion := a.Config.Notion
	if *databaseID != "" {
		notion.DatabaseID = *databaseID
	}
	if !notion.IsConfigured() {
		log.Fatal().Msg("Error: NOTION_TOKEN and a database ID are required")
	}

	client := notionsync.NewNotionClient(notion.Token, notion.DatabaseID)
	stats, err := notionsync.ExportBatch(ctx, a.Repo, client, *batchID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Str("batch_id", *batchID).Msg("Export failed")
	}

	prefix := ""
	if *dryRun {
		prefix = "[DRY RUN] "
	}
	okc("%sCreated %d, updated %d, archived %d page(s)\n", prefix, stats.Created, stats.Updated, stats.Archived)
	if stats.Failed > 0 {
		errc("%d page(s) failed, see the log\n", stats.Failed)
	}
}

func runDelete(args []string) {
	fs, configPath := newFlagSet("delete")
	batchID := fs.String("batch", "", "Batch ID")
	fs.Parse(args)

	if *batchID == "" {
		errc("Usage: cli delete -batch ID\n")
		return
	}

	ctx, log, a := setup(*configPath)
	defer a.Close()

	if err := a.Service.DeleteBatch(ctx, *batchID); err != nil {
		log.Fatal().Err(err).Str("batch_id", *batchID).Msg("Failed to delete batch")
	}
	okc("Deleted batch %s\n", *batchID)
}

func runDashboard(args []string) {
	fs, configPath := newFlagSet("dashboard")
	fs.Parse(args)

	ctx, log, a := setup(*configPath)
	defer a.Close()

	d, err := a.Service.Dashboard(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dashboard")
	}
	printDashboard(d)
}
