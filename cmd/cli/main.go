package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dvloznov/txgroup/internal/app"
	"github.com/dvloznov/txgroup/internal/config"
	"github.com/dvloznov/txgroup/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		switch os.Args[1] {
		case "help", "-h", "--help":
			printUsage()
			return
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	cmd.run(os.Args[2:])
}

type command struct {
	usage string
	run   func(args []string)
}

var commands = map[string]command{
	"import":        {"Register a CSV file as a new batch (optionally upload and map it)", runImport},
	"batches":       {"List import batches", runBatches},
	"map":           {"Apply a column mapping to a batch and ingest its rows", runMap},
	"groups":        {"Show the records of a batch grouped by type and similarity", runGroups},
	"summary":       {"Show per-category totals of a batch", runSummary},
	"categories":    {"List categories", runCategories},
	"assign":        {"Assign a category to records of a batch", runAssign},
	"export-notion": {"Export the records of a batch to a Notion database", runExportNotion},
	"delete":        {"Delete a batch with its records", runDelete},
	"dashboard":     {"Show totals for every batch", runDashboard},
}

var commandOrder = []string{"import", "batches", "map", "groups", "summary", "categories", "assign", "export-notion", "delete", "dashboard"}

func printUsage() {
	fmt.Println("txgroup CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		fmt.Printf("  %-14s %s\n", name, commands[name].usage)
	}
	fmt.Println("  help           Show this help message")
	fmt.Println("\nEvery command accepts -config PATH (or TXGROUP_CONFIG env).")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// setup loads the configuration and opens the application.
func setup(configPath string) (context.Context, zerolog.Logger, *app.App) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: os.Stderr})
	ctx := logger.WithContext(context.Background(), log)

	if cfg.Store.Backend == config.BackendMemory {
		log.Warn().Msg("Using the in-memory store - nothing will persist after this command")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	return ctx, log, a
}
