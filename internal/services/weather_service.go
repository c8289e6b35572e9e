package services

import (
	"context"
	"time"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/repository"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// WeatherService is the read side consumed by the query layer.
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherService creates a new weather service.
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetObservations retrieves observations with filtering and pagination.
func (s *WeatherService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.WeatherObservation, int, error) {
	return s.repo.GetObservations(ctx, filter)
}

// GetObservation retrieves a single station-day reading.
func (s *WeatherService) GetObservation(ctx context.Context, stationID string, date time.Time) (*models.WeatherObservation, error) {
	return s.repo.GetObservationByStationDate(ctx, stationID, date)
}

// GetStations retrieves stations with pagination.
func (s *WeatherService) GetStations(ctx context.Context, limit, offset int) ([]*models.WeatherStation, int, error) {
	return s.repo.ListStations(ctx, limit, offset)
}

// HealthCheck reports storage availability.
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
