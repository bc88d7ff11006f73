package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/campusledger/reconcile/internal/application/pipeline"
	"github.com/campusledger/reconcile/internal/infrastructure/config"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
	"github.com/campusledger/reconcile/internal/observability"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		recordID   = flag.Int64("record", 0, "Reconcile a single payment record (0 = all unassigned)")
		dryRun     = flag.Bool("dry-run", false, "Compute decisions without persisting")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := config.LoadOrEnv(*configFile)

	logCfg := cfg.Observability.Logging
	if *verbose {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	p := pipeline.New(store, cfg.Matching, logger)

	opts := pipeline.RunOptions{DryRun: *dryRun}
	if *recordID > 0 {
		opts.RecordID = recordID
	}

	result, err := p.Run(context.Background(), opts)
	if err != nil {
		logger.Error("Reconciliation run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("Run %s complete: %d confirmed, %d suggested, %d needs review, %d skipped, %d errored\n",
		result.RunID,
		result.Counts.Confirmed,
		result.Counts.Suggested,
		result.Counts.NeedsReview,
		result.Counts.Skipped,
		result.Counts.Errored,
	)

	if *dryRun {
		for _, res := range result.Results {
			fmt.Printf("  record %d: %s", res.RecordID, res.Outcome)
			if res.Decision.Reason != "" {
				fmt.Printf(" (%s)", res.Decision.Reason)
			}
			fmt.Println()
			for _, m := range res.Decision.Matches {
				fmt.Printf("    account %d  %.2f  %s  %d cents  confirmed=%t\n",
					m.AccountID, m.Confidence, m.Method, m.ShareCents, m.Confirmed)
			}
		}
	}
}
