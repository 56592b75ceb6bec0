package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/rumor-ml/commons.systems/nfeledger/internal/category"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/config"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/pipeline"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/scanner"
	"github.com/rumor-ml/commons.systems/nfeledger/internal/ui"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	configFile = flag.String("config", "nfeledger.yaml", "Config file")
	inputDir   = flag.String("input", "", "Inbox directory with invoice XML files (overrides config)")
	workbook   = flag.String("workbook", "", "Workbook path (overrides config)")
	archiveDir = flag.String("archive", "", "Archive directory for processed invoices (overrides config)")
	watchMode  = flag.Bool("watch", false, "Keep running and ingest invoices as they arrive")
	dryRun     = flag.Bool("dry-run", false, "List pending invoices without ingesting")
	verbose    = flag.Bool("verbose", false, "Show detailed ingestion logs")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `nfeledger - NF-e invoice ingestion into a purchase ledger workbook

Usage:
  nfeledger [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Ingest every invoice currently in the inbox
  nfeledger -input ~/notas -workbook compras.xlsx

  # Keep watching the inbox for new invoices
  nfeledger -input ~/notas -watch

  # Dry run: list what would be ingested
  nfeledger -input ~/notas -dry-run

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("nfeledger version %s\n", version)
		os.Exit(0)
	}

	// Optional .env for the NFELEDGER_* overrides.
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *inputDir != "" {
		cfg.InboxDir = *inputDir
	}
	if *workbook != "" {
		cfg.Workbook = *workbook
	}
	if *archiveDir != "" {
		cfg.ArchiveDir = *archiveDir
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if *verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if *dryRun {
		paths, err := scanner.New(cfg.InboxDir).Scan()
		if err != nil {
			return err
		}
		fmt.Printf("Dry run complete. Would ingest %d invoices:\n", len(paths))
		for _, p := range paths {
			fmt.Printf("  - %s\n", p)
		}
		return nil
	}

	table, err := category.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("failed to load category table: %w", err)
	}

	store := ledger.NewStore(cfg.Workbook, log)
	p := pipeline.New(store, table, cfg.EffectiveArchiveDir(), log)

	if *watchMode {
		ui.Header("Watching Invoice Inbox")
		ui.Info(fmt.Sprintf("Inbox: %s", cfg.InboxDir))
		ui.Info(fmt.Sprintf("Workbook: %s", cfg.Workbook))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return p.Watch(ctx, cfg.InboxDir)
	}

	ui.Header("Ingesting Invoices")
	ui.Step(1, 2, fmt.Sprintf("Scanning inbox %s", cfg.InboxDir))

	sum, err := p.RunBatch(cfg.InboxDir)
	if err != nil {
		return err
	}

	ui.Step(2, 2, "Batch complete")
	ui.Success(fmt.Sprintf("Merged %d invoices into %s", sum.Applied, cfg.Workbook))
	if sum.Duplicates > 0 {
		ui.Info(fmt.Sprintf("Skipped %d already-processed invoices", sum.Duplicates))
	}
	if sum.Failed > 0 {
		ui.Warning(fmt.Sprintf("%d files failed and were left in the inbox", sum.Failed))
		return fmt.Errorf("%d invoice files failed to ingest", sum.Failed)
	}
	return nil
}
