package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/repository"
	"weather-pipeline/internal/services"
	"weather-pipeline/pkg/database"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

func main() {
	dataDir := flag.String("data-dir", "./wx_data", "Directory containing weather data files")
	batchSize := flag.Int("batch-size", 1000, "Number of records per insert batch")
	calculateStats := flag.Bool("calculate-stats", false, "Calculate yearly statistics after ingestion")
	configPath := flag.String("config", config.DefaultPath, "Path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("weather-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	logger.SetOutput(logging.RotatingFileOutput(
		cfg.Logging.IngestionLogPath,
		cfg.Logging.IngestionLogMaxMB,
		cfg.Logging.IngestionLogBackups,
	))

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting weather data ingestion", logging.Fields{
		"data_dir":        *dataDir,
		"batch_size":      *batchSize,
		"calculate_stats": *calculateStats,
	})

	metricsCollector := metrics.NewCollector("weather_ingester")

	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)

	ingestionService := services.NewIngestionService(weatherRepo, logger, metricsCollector)
	statsService := services.NewStatisticsService(weatherRepo, logger, metricsCollector)

	result, err := ingestionService.IngestDirectory(ctx, *dataDir, *batchSize)
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{}, err)
	}

	printSummary(result)

	if *calculateStats {
		fmt.Println("\n" + strings.Repeat("=", 72))
		fmt.Println("CALCULATING STATISTICS")
		fmt.Println(strings.Repeat("=", 72))

		statsResult, err := statsService.CalculateAllStatistics(ctx)
		if err != nil {
			logger.Error(ctx, "[STATS_ERROR] Statistics calculation failed", logging.Fields{}, err)
			fmt.Printf("Statistics calculation failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Station-years upserted: %d\n", statsResult.GroupsUpserted)
		fmt.Printf("Observations scanned:   %d\n", statsResult.Observations)
		fmt.Printf("Duration:               %v\n", statsResult.Duration)
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Run completed", logging.Fields{
		"run_id":           result.RunID,
		"ingested":         result.Ingested,
		"duplicates":       result.Duplicates,
		"malformed":        result.Malformed,
		"failed":           result.Failed,
		"duration_seconds": result.Duration.Seconds(),
	})
}

func printSummary(result *services.IngestionResult) {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Run ID:          %s\n", result.RunID)
	fmt.Printf("Files:           %d (%d skipped)\n", result.TotalFiles, result.SkippedFiles)
	fmt.Printf("Lines:           %d\n", result.TotalLines)
	fmt.Printf("Ingested:        %d\n", result.Ingested)
	fmt.Printf("Duplicates:      %d\n", result.Duplicates)
	fmt.Printf("Malformed:       %d\n", result.Malformed)
	fmt.Printf("Failed rows:     %d\n", result.Failed)
	fmt.Printf("Duration:        %v\n", result.Duration)
	if result.Duration.Seconds() > 0 {
		fmt.Printf("Records/Second:  %.2f\n", float64(result.Ingested)/result.Duration.Seconds())
	}

	fmt.Println()
	for _, file := range result.Files {
		fmt.Printf("  %-24s ingested=%-8d duplicates=%-8d malformed=%d\n",
			file.FileName, file.Ingested, file.Duplicates, file.Malformed)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i >= 10 {
				fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
				break
			}
			fmt.Printf("  - %s\n", errMsg)
		}
	}
}
