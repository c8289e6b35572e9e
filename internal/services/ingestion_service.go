package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/repository"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// IngestionService walks a directory of per-station raw files and persists
// new observations. Runs are re-entrant: re-ingesting already-stored data
// only produces duplicate skips, never new or modified rows.
type IngestionService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// FileIngestionResult contains per-file ingestion counts.
type FileIngestionResult struct {
	FileName   string
	StationID  string
	TotalLines int
	Ingested   int
	Duplicates int
	Malformed  int
	Failed     int
}

// IngestionResult contains counts for a whole ingestion run.
type IngestionResult struct {
	RunID        string
	TotalFiles   int
	SkippedFiles int
	TotalLines   int
	Ingested     int
	Duplicates   int
	Malformed    int
	Failed       int
	Duration     time.Duration
	Files        []*FileIngestionResult
	Errors       []string
}

// addFile folds one file's counts into the run totals.
func (r *IngestionResult) addFile(f *FileIngestionResult) {
	r.TotalLines += f.TotalLines
	r.Ingested += f.Ingested
	r.Duplicates += f.Duplicates
	r.Malformed += f.Malformed
	r.Failed += f.Failed
	r.Files = append(r.Files, f)
}

// UnreadableFileError reports a station file that could not be read. The
// file is skipped and the run continues.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// IngestDirectory ingests every *.txt station file in dataDir. A malformed
// line or unreadable file never aborts the run; storage failures do, because
// nothing useful can be persisted without storage and the run is safe to
// re-execute from scratch.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()
	runID := uuid.NewString()

	runLog := s.logger.WithFields(logging.Fields{"run_id": runID})

	runLog.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": batchSize,
	})

	files, err := filepath.Glob(filepath.Join(dataDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dataDir, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dataDir)
	}

	result := &IngestionResult{
		RunID:      runID,
		TotalFiles: len(files),
	}

	runLog.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
	})

	for _, filePath := range files {
		fileResult, err := s.ingestFile(ctx, runLog, filePath, batchSize)

		var unreadable *UnreadableFileError
		if errors.As(err, &unreadable) {
			result.SkippedFiles++
			result.Errors = append(result.Errors, unreadable.Error())
			// Batches flushed before the failure were persisted; keep
			// their counts so the summary matches what is in storage.
			if fileResult != nil {
				result.addFile(fileResult)
			}
			runLog.Error(ctx, "[INGEST_FILE_SKIPPED] File unreadable, skipping", logging.Fields{
				"file_path": filePath,
			}, err)
			s.metrics.RecordIngestionError("unreadable_file")
			continue
		}
		if err != nil {
			// Storage failure: abort cleanly, the run is re-runnable.
			return nil, fmt.Errorf("ingestion aborted at %s: %w", filePath, err)
		}

		result.addFile(fileResult)
		s.metrics.IngestionFilesTotal.Inc()

		runLog.Info(ctx, "[INGEST_FILE_COMPLETE] File ingested", logging.Fields{
			"file_path":  filePath,
			"station_id": fileResult.StationID,
			"lines":      fileResult.TotalLines,
			"ingested":   fileResult.Ingested,
			"duplicates": fileResult.Duplicates,
			"malformed":  fileResult.Malformed,
			"failed":     fileResult.Failed,
		})
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	runLog.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":      result.TotalFiles,
		"skipped_files":    result.SkippedFiles,
		"total_lines":      result.TotalLines,
		"ingested":         result.Ingested,
		"duplicates":       result.Duplicates,
		"malformed":        result.Malformed,
		"failed":           result.Failed,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, nil
}

// ingestFile ingests a single station file. The station identity derives
// from the file-name stem, so files never share (station_id, date) pairs.
func (s *IngestionService) ingestFile(ctx context.Context, runLog *logging.ContextLogger, filePath string, batchSize int) (*FileIngestionResult, error) {
	fileName := filepath.Base(filePath)
	stationID := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	now := time.Now().UTC()
	station := &models.WeatherStation{
		StationID: stationID,
		State:     stateFromStationID(stationID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateStation(ctx, station); err != nil {
		return nil, fmt.Errorf("failed to register station %s: %w", stationID, err)
	}

	// Pre-load the identity set once per file: one round trip instead of
	// one existence check per candidate row.
	seen, err := s.repo.ObservationDates(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dedup set for %s: %w", stationID, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, &UnreadableFileError{Path: filePath, Err: err}
	}
	defer file.Close()

	result := &FileIngestionResult{
		FileName:  fileName,
		StationID: stationID,
	}
	batch := make([]*models.WeatherObservation, 0, batchSize)

	lineNo := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		result.TotalLines++

		obs, err := models.ParseObservation(stationID, line)
		if err != nil {
			result.Malformed++
			s.metrics.IngestionMalformedTotal.Inc()
			s.metrics.RecordIngestionError("malformed_record")
			runLog.Warn(ctx, "[INGEST_MALFORMED] Skipping malformed record", logging.Fields{
				"file":    fileName,
				"line_no": lineNo,
				"raw":     line,
				"reason":  err.Error(),
			})
			continue
		}

		dateKey := obs.ObservationDate.Format(repository.DateKey)
		if _, dup := seen[dateKey]; dup {
			result.Duplicates++
			s.metrics.IngestionDuplicatesTotal.Inc()
			runLog.Debug(ctx, "[INGEST_DUPLICATE] Observation already stored, skipping", logging.Fields{
				"file":       fileName,
				"line_no":    lineNo,
				"station_id": stationID,
				"date":       dateKey,
			})
			continue
		}
		// Also guards against repeated dates within the same file.
		seen[dateKey] = struct{}{}

		batch = append(batch, obs)
		if len(batch) >= batchSize {
			if err := s.flushBatch(ctx, runLog, result, batch); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}

	if err := scanner.Err(); err != nil {
		// Partial result: earlier batches for this file are already stored.
		return result, &UnreadableFileError{Path: filePath, Err: err}
	}

	if len(batch) > 0 {
		if err := s.flushBatch(ctx, runLog, result, batch); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// flushBatch persists one batch. A failed batch is retried row by row so
// good rows in a broken batch are not lost; rows skipped by the storage
// uniqueness constraint (lost races) count as duplicates.
func (s *IngestionService) flushBatch(ctx context.Context, runLog *logging.ContextLogger, result *FileIngestionResult, batch []*models.WeatherObservation) error {
	inserted, err := s.repo.InsertObservationsBatch(ctx, batch)
	if err == nil {
		result.Ingested += inserted
		result.Duplicates += len(batch) - inserted
		return nil
	}

	runLog.Warn(ctx, "[INGEST_BATCH_RETRY] Batch insert failed, retrying per row", logging.Fields{
		"station_id": result.StationID,
		"batch_size": len(batch),
		"error":      err.Error(),
	})
	s.metrics.RecordIngestionError("batch_error")

	var lastErr error
	failed := 0
	for _, obs := range batch {
		ok, err := s.repo.InsertObservationIfAbsent(ctx, obs)
		if err != nil {
			failed++
			lastErr = err
			result.Failed++
			s.metrics.RecordIngestionError("row_error")
			runLog.Error(ctx, "[INGEST_ROW_FAILED] Row insert failed", logging.Fields{
				"station_id": obs.StationID,
				"date":       obs.ObservationDate.Format(repository.DateKey),
			}, err)
			continue
		}
		if ok {
			result.Ingested++
			s.metrics.IngestionRecordsTotal.Inc()
		} else {
			result.Duplicates++
			s.metrics.IngestionDuplicatesTotal.Inc()
		}
	}

	// Every row failing means storage itself is gone, not bad data.
	if failed == len(batch) && lastErr != nil {
		return fmt.Errorf("storage unavailable: %w", lastErr)
	}

	return nil
}

// stateFromStationID derives a coarse state code from the station ID prefix.
func stateFromStationID(stationID string) string {
	if len(stationID) >= 2 {
		return stationID[:2]
	}
	return "XX"
}
