package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"weather-pipeline/internal/models"
	"weather-pipeline/pkg/database"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// WeatherRepository provides data access for observations and statistics.
// Uniqueness of (station_id, observation_date) and (station_id, year) is
// enforced by the schema; the repository never overwrites stored readings.
type WeatherRepository interface {
	// Station operations
	CreateStation(ctx context.Context, station *models.WeatherStation) error
	ListStations(ctx context.Context, limit, offset int) ([]*models.WeatherStation, int, error)

	// Observation operations
	InsertObservationIfAbsent(ctx context.Context, obs *models.WeatherObservation) (bool, error)
	InsertObservationsBatch(ctx context.Context, observations []*models.WeatherObservation) (int, error)
	ObservationExists(ctx context.Context, stationID string, date time.Time) (bool, error)
	ObservationDates(ctx context.Context, stationID string) (map[string]struct{}, error)
	IterateObservations(ctx context.Context, filter ObservationIterFilter, fn func(*models.WeatherObservation) error) error
	GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.WeatherObservation, int, error)
	GetObservationByStationDate(ctx context.Context, stationID string, date time.Time) (*models.WeatherObservation, error)

	// Statistics operations
	UpsertStatistics(ctx context.Context, stats *models.WeatherStatistics) error
	GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.WeatherStatistics, int, error)
	CalculateYearlyStatistics(ctx context.Context, stationID string, year int) (*models.WeatherStatistics, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// DateKey is the identity-set key format used by ObservationDates.
const DateKey = "2006-01-02"

// ObservationFilter defines filters for the paginated observation query.
type ObservationFilter struct {
	StationID *string
	Date      *time.Time
	Limit     int
	Offset    int
}

// ObservationIterFilter defines filters for streaming observations.
type ObservationIterFilter struct {
	StationID *string
	Year      *int
}

// StatisticsFilter defines filters for the paginated statistics query.
type StatisticsFilter struct {
	StationID *string
	Year      *int
	Limit     int
	Offset    int
}

// weatherRepository implements WeatherRepository on PostgreSQL.
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository.
func NewWeatherRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateStation registers a station, ignoring re-registrations.
func (r *weatherRepository) CreateStation(ctx context.Context, station *models.WeatherStation) error {
	query := `
		INSERT INTO weather_stations (station_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (station_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, "insert_station", query,
		station.StationID,
		station.State,
		station.CreatedAt,
		station.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_STATION] Station registered", logging.Fields{
		"station_id": station.StationID,
	})

	return nil
}

// ListStations retrieves stations with pagination and a total count.
func (r *weatherRepository) ListStations(ctx context.Context, limit, offset int) ([]*models.WeatherStation, int, error) {
	var total int
	if err := r.db.GetContext(ctx, "count_stations", &total, "SELECT COUNT(*) FROM weather_stations"); err != nil {
		return nil, 0, fmt.Errorf("failed to count stations: %w", err)
	}

	query := `
		SELECT station_id, state, created_at, updated_at
		FROM weather_stations
		ORDER BY station_id
		LIMIT $1 OFFSET $2
	`

	stations := []*models.WeatherStation{}
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, total, nil
}

// InsertObservationIfAbsent inserts one observation unless its
// (station_id, observation_date) identity already exists. Returns whether a
// row was actually inserted; a conflict is not an error.
func (r *weatherRepository) InsertObservationIfAbsent(ctx context.Context, obs *models.WeatherObservation) (bool, error) {
	query := `
		INSERT INTO weather_observations (
			station_id, observation_date,
			max_temperature_celsius, min_temperature_celsius, precipitation_cm,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_id, observation_date) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, "insert_observation", query,
		obs.StationID,
		obs.ObservationDate,
		obs.MaxTemperatureCelsius,
		obs.MinTemperatureCelsius,
		obs.PrecipitationCm,
		obs.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert observation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected == 1, nil
}

// InsertObservationsBatch inserts observations in a single transaction,
// skipping identities that already exist. Returns the number of rows
// actually inserted. On error nothing is persisted; the caller retries at
// per-row granularity.
func (r *weatherRepository) InsertObservationsBatch(ctx context.Context, observations []*models.WeatherObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(observations)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(observations),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weather_observations (
			station_id, observation_date,
			max_temperature_celsius, min_temperature_celsius, precipitation_cm,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_id, observation_date) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, obs := range observations {
		result, err := stmt.ExecContext(ctx,
			obs.StationID,
			obs.ObservationDate,
			obs.MaxTemperatureCelsius,
			obs.MinTemperatureCelsius,
			obs.PrecipitationCm,
			obs.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert observation for %s/%s: %w",
				obs.StationID, obs.ObservationDate.Format(DateKey), err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(inserted))

	return inserted, nil
}

// ObservationExists reports whether a reading for the station-day is stored.
func (r *weatherRepository) ObservationExists(ctx context.Context, stationID string, date time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM weather_observations
			WHERE station_id = $1 AND observation_date = $2
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, "observation_exists", &exists, query, stationID, date); err != nil {
		return false, fmt.Errorf("failed to check observation existence: %w", err)
	}

	return exists, nil
}

// ObservationDates loads the set of stored observation dates for a station,
// keyed by DateKey. Loaded once per station file so the dedup check is a map
// lookup instead of a round trip per candidate row.
func (r *weatherRepository) ObservationDates(ctx context.Context, stationID string) (map[string]struct{}, error) {
	query := `
		SELECT observation_date
		FROM weather_observations
		WHERE station_id = $1
	`

	rows, err := r.db.QueryContext(ctx, "observation_dates", query, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load observation dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]struct{})
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan observation date: %w", err)
		}
		dates[date.Format(DateKey)] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read observation dates: %w", err)
	}

	return dates, nil
}

// IterateObservations streams observations ordered by (station_id,
// observation_date), calling fn for each row. Iteration stops on the first
// error fn returns.
func (r *weatherRepository) IterateObservations(ctx context.Context, filter ObservationIterFilter, fn func(*models.WeatherObservation) error) error {
	query := `
		SELECT id, station_id, observation_date,
		       max_temperature_celsius, min_temperature_celsius, precipitation_cm,
		       created_at
		FROM weather_observations
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Year != nil {
		query += fmt.Sprintf(" AND EXTRACT(YEAR FROM observation_date) = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}

	query += " ORDER BY station_id, observation_date"

	rows, err := r.db.QueryContext(ctx, "iterate_observations", query, args...)
	if err != nil {
		return fmt.Errorf("failed to iterate observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var obs models.WeatherObservation
		if err := rows.StructScan(&obs); err != nil {
			return fmt.Errorf("failed to scan observation: %w", err)
		}
		if err := fn(&obs); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read observations: %w", err)
	}

	return nil
}

// GetObservations retrieves observations with filtering and pagination.
func (r *weatherRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]*models.WeatherObservation, int, error) {
	query := `
		SELECT id, station_id, observation_date,
		       max_temperature_celsius, min_temperature_celsius, precipitation_cm,
		       created_at
		FROM weather_observations
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Date != nil {
		query += fmt.Sprintf(" AND observation_date = $%d", argNum)
		args = append(args, *filter.Date)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_observations", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	query += " ORDER BY station_id, observation_date"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	observations := []*models.WeatherObservation{}
	if err := r.db.SelectContext(ctx, "get_observations", &observations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get observations: %w", err)
	}

	return observations, totalCount, nil
}

// GetObservationByStationDate retrieves a specific station-day reading.
func (r *weatherRepository) GetObservationByStationDate(ctx context.Context, stationID string, date time.Time) (*models.WeatherObservation, error) {
	query := `
		SELECT id, station_id, observation_date,
		       max_temperature_celsius, min_temperature_celsius, precipitation_cm,
		       created_at
		FROM weather_observations
		WHERE station_id = $1 AND observation_date = $2
	`

	var obs models.WeatherObservation
	err := r.db.GetContext(ctx, "get_observation_by_date", &obs, query, stationID, date)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "weather_observation",
			ID:       fmt.Sprintf("%s:%s", stationID, date.Format(DateKey)),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}

	return &obs, nil
}

// UpsertStatistics inserts or replaces the aggregate row keyed by
// (station_id, year). Aggregates are derived, so replacement is always safe.
func (r *weatherRepository) UpsertStatistics(ctx context.Context, stats *models.WeatherStatistics) error {
	query := `
		INSERT INTO weather_statistics (
			station_id, year,
			avg_max_temperature_celsius, avg_min_temperature_celsius, total_precipitation_cm,
			observation_count, valid_max_temp_count, valid_min_temp_count, valid_precipitation_count,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (station_id, year) DO UPDATE SET
			avg_max_temperature_celsius = EXCLUDED.avg_max_temperature_celsius,
			avg_min_temperature_celsius = EXCLUDED.avg_min_temperature_celsius,
			total_precipitation_cm = EXCLUDED.total_precipitation_cm,
			observation_count = EXCLUDED.observation_count,
			valid_max_temp_count = EXCLUDED.valid_max_temp_count,
			valid_min_temp_count = EXCLUDED.valid_min_temp_count,
			valid_precipitation_count = EXCLUDED.valid_precipitation_count,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		stats.StationID,
		stats.Year,
		stats.AvgMaxTemperatureCelsius,
		stats.AvgMinTemperatureCelsius,
		stats.TotalPrecipitationCm,
		stats.ObservationCount,
		stats.ValidMaxTempCount,
		stats.ValidMinTempCount,
		stats.ValidPrecipitationCount,
		stats.CreatedAt,
		stats.UpdatedAt,
	).Scan(&stats.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert statistics: %w", err)
	}

	return nil
}

// GetStatistics retrieves yearly statistics with filtering and pagination.
func (r *weatherRepository) GetStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.WeatherStatistics, int, error) {
	query := `
		SELECT id, station_id, year,
		       avg_max_temperature_celsius, avg_min_temperature_celsius, total_precipitation_cm,
		       observation_count, valid_max_temp_count, valid_min_temp_count, valid_precipitation_count,
		       created_at, updated_at
		FROM weather_statistics
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Year != nil {
		query += fmt.Sprintf(" AND year = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_statistics", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count statistics: %w", err)
	}

	query += " ORDER BY station_id, year"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	statistics := []*models.WeatherStatistics{}
	if err := r.db.SelectContext(ctx, "get_statistics", &statistics, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get statistics: %w", err)
	}

	return statistics, totalCount, nil
}

// CalculateYearlyStatistics recomputes the aggregate for one station-year in
// SQL. AVG and SUM ignore NULL inputs and yield NULL over an all-NULL group,
// matching the per-field null policy.
func (r *weatherRepository) CalculateYearlyStatistics(ctx context.Context, stationID string, year int) (*models.WeatherStatistics, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.StatsCalculationDuration.Observe(duration.Seconds())
		r.logger.Debug(ctx, "[REPO_CALC_STATS] Statistics calculated", logging.Fields{
			"station_id":  stationID,
			"year":        year,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	query := `
		SELECT
			COUNT(*) AS observation_count,
			COUNT(max_temperature_celsius) AS valid_max_temp_count,
			COUNT(min_temperature_celsius) AS valid_min_temp_count,
			COUNT(precipitation_cm) AS valid_precipitation_count,
			AVG(max_temperature_celsius) AS avg_max_temperature_celsius,
			AVG(min_temperature_celsius) AS avg_min_temperature_celsius,
			SUM(precipitation_cm) AS total_precipitation_cm
		FROM weather_observations
		WHERE station_id = $1
		  AND EXTRACT(YEAR FROM observation_date) = $2
	`

	var result struct {
		ObservationCount         int      `db:"observation_count"`
		ValidMaxTempCount        int      `db:"valid_max_temp_count"`
		ValidMinTempCount        int      `db:"valid_min_temp_count"`
		ValidPrecipitationCount  int      `db:"valid_precipitation_count"`
		AvgMaxTemperatureCelsius *float64 `db:"avg_max_temperature_celsius"`
		AvgMinTemperatureCelsius *float64 `db:"avg_min_temperature_celsius"`
		TotalPrecipitationCm     *float64 `db:"total_precipitation_cm"`
	}

	if err := r.db.GetContext(ctx, "calculate_statistics", &result, query, stationID, year); err != nil {
		return nil, fmt.Errorf("failed to calculate statistics: %w", err)
	}

	now := time.Now().UTC()
	stats := &models.WeatherStatistics{
		StationID:                stationID,
		Year:                     year,
		AvgMaxTemperatureCelsius: result.AvgMaxTemperatureCelsius,
		AvgMinTemperatureCelsius: result.AvgMinTemperatureCelsius,
		TotalPrecipitationCm:     result.TotalPrecipitationCm,
		ObservationCount:         result.ObservationCount,
		ValidMaxTempCount:        result.ValidMaxTempCount,
		ValidMinTempCount:        result.ValidMinTempCount,
		ValidPrecipitationCount:  result.ValidPrecipitationCount,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	return stats, nil
}

// HealthCheck performs a repository health check.
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
