package services

import (
	"context"
	"fmt"
	"time"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/repository"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// StatisticsService computes yearly aggregates per station. Aggregation is
// idempotent: results are upserted by (station_id, year), so re-running it
// over unchanged observations leaves identical rows.
type StatisticsService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service.
func NewStatisticsService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// StatisticsResult contains counts for one aggregation pass.
type StatisticsResult struct {
	GroupsUpserted int
	Observations   int
	Duration       time.Duration
}

// yearAccumulator folds observations of one (station, year) group. Nil
// fields never contribute: a field's average or total exists only if at
// least one observation carried a value for it.
type yearAccumulator struct {
	stationID   string
	year        int
	count       int
	maxCount    int
	minCount    int
	precipCount int
	maxSum      float64
	minSum      float64
	precipSum   float64
}

func newYearAccumulator(stationID string, year int) *yearAccumulator {
	return &yearAccumulator{stationID: stationID, year: year}
}

func (a *yearAccumulator) add(obs *models.WeatherObservation) {
	a.count++
	if obs.MaxTemperatureCelsius != nil {
		a.maxCount++
		a.maxSum += *obs.MaxTemperatureCelsius
	}
	if obs.MinTemperatureCelsius != nil {
		a.minCount++
		a.minSum += *obs.MinTemperatureCelsius
	}
	if obs.PrecipitationCm != nil {
		a.precipCount++
		a.precipSum += *obs.PrecipitationCm
	}
}

func (a *yearAccumulator) statistics() *models.WeatherStatistics {
	now := time.Now().UTC()
	stats := &models.WeatherStatistics{
		StationID:               a.stationID,
		Year:                    a.year,
		ObservationCount:        a.count,
		ValidMaxTempCount:       a.maxCount,
		ValidMinTempCount:       a.minCount,
		ValidPrecipitationCount: a.precipCount,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if a.maxCount > 0 {
		avg := a.maxSum / float64(a.maxCount)
		stats.AvgMaxTemperatureCelsius = &avg
	}
	if a.minCount > 0 {
		avg := a.minSum / float64(a.minCount)
		stats.AvgMinTemperatureCelsius = &avg
	}
	if a.precipCount > 0 {
		total := a.precipSum
		stats.TotalPrecipitationCm = &total
	}

	return stats
}

// CalculateAllStatistics streams stored observations ordered by
// (station_id, observation_date) and upserts one aggregate per station-year.
// Memory stays bounded by one group regardless of table size.
func (s *StatisticsService) CalculateAllStatistics(ctx context.Context) (*StatisticsResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[STATS_CALC_START] Starting statistics calculation", logging.Fields{})

	result := &StatisticsResult{}
	var acc *yearAccumulator

	flush := func() error {
		if acc == nil {
			return nil
		}
		stats := acc.statistics()
		if err := s.repo.UpsertStatistics(ctx, stats); err != nil {
			return fmt.Errorf("failed to upsert statistics for %s/%d: %w", acc.stationID, acc.year, err)
		}
		result.GroupsUpserted++
		s.metrics.StatsGroupsTotal.Inc()
		return nil
	}

	err := s.repo.IterateObservations(ctx, repository.ObservationIterFilter{}, func(obs *models.WeatherObservation) error {
		year := obs.Year()
		if acc == nil || acc.stationID != obs.StationID || acc.year != year {
			if err := flush(); err != nil {
				return err
			}
			acc = newYearAccumulator(obs.StationID, year)
		}
		acc.add(obs)
		result.Observations++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("statistics calculation failed: %w", err)
	}

	if err := flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(startTime)
	s.metrics.StatsCalculationDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[STATS_CALC_COMPLETE] Statistics calculation completed", logging.Fields{
		"groups_upserted":  result.GroupsUpserted,
		"observations":     result.Observations,
		"duration_seconds": result.Duration.Seconds(),
	})

	return result, nil
}

// RecalculateStationYear recomputes and upserts the aggregate for a single
// station-year via the storage layer's SQL aggregation. Groups with zero
// observations are not persisted.
func (s *StatisticsService) RecalculateStationYear(ctx context.Context, stationID string, year int) (*models.WeatherStatistics, error) {
	stats, err := s.repo.CalculateYearlyStatistics(ctx, stationID, year)
	if err != nil {
		return nil, err
	}

	if stats.ObservationCount == 0 {
		s.logger.Debug(ctx, "[STATS_EMPTY_GROUP] No observations for station-year", logging.Fields{
			"station_id": stationID,
			"year":       year,
		})
		return stats, nil
	}

	if err := s.repo.UpsertStatistics(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to save statistics for %s/%d: %w", stationID, year, err)
	}

	return stats, nil
}

// GetStatistics retrieves statistics with filtering and pagination.
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.WeatherStatistics, int, error) {
	return s.repo.GetStatistics(ctx, filter)
}
