package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/aestimo/internal/app"
	"github.com/ternarybob/aestimo/internal/models"
)

// runAnalyze loads a workpaper seed file, runs the full analysis pipeline
// over it and prints where the results landed. Without a seed path it lists
// the seeds discovered under the configured workpapers directory.
func runAnalyze(seedPath string) {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if seedPath == "" {
		seeds, err := application.IngestService.Discover()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to scan workpapers directory")
		}
		if len(seeds) == 0 {
			fmt.Printf("No workpaper seeds found under %s\n", config.Ingest.WorkpapersDir)
			fmt.Println("Usage: aestimo analyze <seed.json>")
			os.Exit(1)
		}
		fmt.Printf("Workpaper seeds under %s:\n", config.Ingest.WorkpapersDir)
		for _, seed := range seeds {
			fmt.Printf("  %s\n", seed)
		}
		fmt.Println("\nRun: aestimo analyze <seed.json>")
		return
	}

	// Cancel the run on Ctrl+C; the workpaper keeps every completed module,
	// a later run resumes at the first incomplete one.
	ctx, cancel := context.WithCancel(application.Context())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn().Msg("Interrupt received, stopping after the current step")
		cancel()
	}()

	wp, err := application.IngestService.LoadWorkpaper(ctx, seedPath)
	if err != nil {
		logger.Fatal().Err(err).Str("seed", seedPath).Msg("Failed to load workpaper seed")
	}
	if err := application.StorageManager.WorkpaperStorage().Save(wp); err != nil {
		logger.Fatal().Err(err).Msg("Failed to persist workpaper")
	}

	logger.Info().
		Str("workpaper_id", wp.ID).
		Str("company", wp.Company.Name).
		Int("periods", len(wp.Reports)).
		Bool("planner_enabled", wp.Company.PlannerEnabled).
		Msg("Starting analysis run")

	run, err := application.Pipeline.Run(ctx, wp.ID)
	if err != nil {
		logger.Fatal().Err(err).Str("workpaper_id", wp.ID).Msg("Analysis run failed")
	}

	final, err := application.StorageManager.WorkpaperStorage().Get(wp.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to reload finished workpaper")
	}

	printRunSummary(run, final)
}

// printRunSummary reports the run outcome on stdout for CLI users; the same
// data is available over the API and in the HTML report.
func printRunSummary(run *models.AnalysisRun, wp *models.Workpaper) {
	completed, failed := 0, 0
	for _, out := range wp.ModuleOutputs {
		if out == nil {
			continue
		}
		if out.Status == models.ModuleStatusCompleted {
			completed++
		} else {
			failed++
		}
	}

	fmt.Printf("\nAnalysis run %s: %s\n", run.ID, run.State)
	fmt.Printf("Company:        %s (%s)\n", wp.Company.Name, wp.Company.Industry)
	fmt.Printf("Workpaper:      %s\n", wp.ID)
	fmt.Printf("Modules:        %d completed, %d failed\n", completed, failed)
	fmt.Printf("Risks:          %d\n", len(wp.Insights.KeyRisks))
	fmt.Printf("Opportunities:  %d\n", len(wp.Insights.KeyOpportunities))
	fmt.Printf("Contradictions: %d\n", len(wp.Insights.ContradictionLog))
	if run.Error != "" {
		fmt.Printf("Error:          %s\n", run.Error)
	}
	fmt.Printf("Reports dir:    %s\n", config.Report.OutputDir)
}
