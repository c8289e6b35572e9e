package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"weather-pipeline/internal/models"
)

// MemoryRepository is an in-memory WeatherRepository with the same identity
// and null-handling semantics as the PostgreSQL implementation. It backs the
// service and handler tests so the pipeline logic can be exercised without a
// database.
type MemoryRepository struct {
	mu           sync.RWMutex
	nextID       int64
	stations     map[string]*models.WeatherStation
	observations map[string]*models.WeatherObservation // key station_id|date
	statistics   map[string]*models.WeatherStatistics  // key station_id|year

	// FailBatchInserts makes InsertObservationsBatch return an error so the
	// per-row retry path can be tested.
	FailBatchInserts bool

	// FailRowInserts makes every single-row insert return an error so the
	// storage-unavailable abort can be tested.
	FailRowInserts bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		stations:     make(map[string]*models.WeatherStation),
		observations: make(map[string]*models.WeatherObservation),
		statistics:   make(map[string]*models.WeatherStatistics),
	}
}

func obsKey(stationID string, date time.Time) string {
	return stationID + "|" + date.Format(DateKey)
}

func statsKey(stationID string, year int) string {
	return fmt.Sprintf("%s|%d", stationID, year)
}

// CreateStation registers a station, ignoring re-registrations.
func (m *MemoryRepository) CreateStation(_ context.Context, station *models.WeatherStation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stations[station.StationID]; ok {
		return nil
	}
	clone := *station
	m.stations[station.StationID] = &clone
	return nil
}

// ListStations returns stations ordered by ID with pagination.
func (m *MemoryRepository) ListStations(_ context.Context, limit, offset int) ([]*models.WeatherStation, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.stations))
	for id := range m.stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := len(ids)
	stations := []*models.WeatherStation{}
	for i := offset; i < total && len(stations) < limit; i++ {
		clone := *m.stations[ids[i]]
		stations = append(stations, &clone)
	}

	return stations, total, nil
}

// InsertObservationIfAbsent inserts unless the station-day already exists.
func (m *MemoryRepository) InsertObservationIfAbsent(_ context.Context, obs *models.WeatherObservation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRowInserts {
		return false, fmt.Errorf("row insert failed")
	}

	key := obsKey(obs.StationID, obs.ObservationDate)
	if _, ok := m.observations[key]; ok {
		return false, nil
	}

	m.nextID++
	clone := *obs
	clone.ID = m.nextID
	m.observations[key] = &clone
	return true, nil
}

// InsertObservationsBatch inserts all-or-nothing, skipping duplicates, and
// returns the number of rows inserted.
func (m *MemoryRepository) InsertObservationsBatch(ctx context.Context, observations []*models.WeatherObservation) (int, error) {
	if m.FailBatchInserts {
		return 0, fmt.Errorf("batch insert failed")
	}

	inserted := 0
	for _, obs := range observations {
		ok, err := m.InsertObservationIfAbsent(ctx, obs)
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// ObservationExists reports whether the station-day has a stored reading.
func (m *MemoryRepository) ObservationExists(_ context.Context, stationID string, date time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.observations[obsKey(stationID, date)]
	return ok, nil
}

// ObservationDates returns the stored date set for a station.
func (m *MemoryRepository) ObservationDates(_ context.Context, stationID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dates := make(map[string]struct{})
	for _, obs := range m.observations {
		if obs.StationID == stationID {
			dates[obs.ObservationDate.Format(DateKey)] = struct{}{}
		}
	}
	return dates, nil
}

func (m *MemoryRepository) sortedObservations(filter ObservationIterFilter) []*models.WeatherObservation {
	out := make([]*models.WeatherObservation, 0, len(m.observations))
	for _, obs := range m.observations {
		if filter.StationID != nil && obs.StationID != *filter.StationID {
			continue
		}
		if filter.Year != nil && obs.Year() != *filter.Year {
			continue
		}
		clone := *obs
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].ObservationDate.Before(out[j].ObservationDate)
	})

	return out
}

// IterateObservations streams observations ordered by (station_id, date).
func (m *MemoryRepository) IterateObservations(_ context.Context, filter ObservationIterFilter, fn func(*models.WeatherObservation) error) error {
	m.mu.RLock()
	ordered := m.sortedObservations(filter)
	m.mu.RUnlock()

	for _, obs := range ordered {
		if err := fn(obs); err != nil {
			return err
		}
	}
	return nil
}

// GetObservations retrieves observations with filtering and pagination.
func (m *MemoryRepository) GetObservations(_ context.Context, filter ObservationFilter) ([]*models.WeatherObservation, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	iterFilter := ObservationIterFilter{StationID: filter.StationID}
	matched := []*models.WeatherObservation{}
	for _, obs := range m.sortedObservations(iterFilter) {
		if filter.Date != nil && !obs.ObservationDate.Equal(*filter.Date) {
			continue
		}
		matched = append(matched, obs)
	}

	total := len(matched)
	page := []*models.WeatherObservation{}
	for i := filter.Offset; i < total && len(page) < filter.Limit; i++ {
		page = append(page, matched[i])
	}

	return page, total, nil
}

// GetObservationByStationDate retrieves a specific station-day reading.
func (m *MemoryRepository) GetObservationByStationDate(_ context.Context, stationID string, date time.Time) (*models.WeatherObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obs, ok := m.observations[obsKey(stationID, date)]
	if !ok {
		return nil, &NotFoundError{
			Resource: "weather_observation",
			ID:       fmt.Sprintf("%s:%s", stationID, date.Format(DateKey)),
		}
	}
	clone := *obs
	return &clone, nil
}

// UpsertStatistics inserts or replaces the aggregate keyed by station-year.
func (m *MemoryRepository) UpsertStatistics(_ context.Context, stats *models.WeatherStatistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := statsKey(stats.StationID, stats.Year)
	clone := *stats
	if existing, ok := m.statistics[key]; ok {
		clone.ID = existing.ID
		clone.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		clone.ID = m.nextID
	}
	m.statistics[key] = &clone
	stats.ID = clone.ID
	return nil
}

// GetStatistics retrieves statistics with filtering and pagination.
func (m *MemoryRepository) GetStatistics(_ context.Context, filter StatisticsFilter) ([]*models.WeatherStatistics, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []*models.WeatherStatistics{}
	for _, stats := range m.statistics {
		if filter.StationID != nil && stats.StationID != *filter.StationID {
			continue
		}
		if filter.Year != nil && stats.Year != *filter.Year {
			continue
		}
		clone := *stats
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StationID != matched[j].StationID {
			return matched[i].StationID < matched[j].StationID
		}
		return matched[i].Year < matched[j].Year
	})

	total := len(matched)
	page := []*models.WeatherStatistics{}
	for i := filter.Offset; i < total && len(page) < filter.Limit; i++ {
		page = append(page, matched[i])
	}

	return page, total, nil
}

// CalculateYearlyStatistics recomputes the aggregate for one station-year,
// ignoring nil inputs per field the way SQL AVG and SUM ignore NULLs.
func (m *MemoryRepository) CalculateYearlyStatistics(_ context.Context, stationID string, year int) (*models.WeatherStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	stats := &models.WeatherStatistics{
		StationID: stationID,
		Year:      year,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var maxSum, minSum, precipSum float64
	for _, obs := range m.observations {
		if obs.StationID != stationID || obs.Year() != year {
			continue
		}
		stats.ObservationCount++
		if obs.MaxTemperatureCelsius != nil {
			stats.ValidMaxTempCount++
			maxSum += *obs.MaxTemperatureCelsius
		}
		if obs.MinTemperatureCelsius != nil {
			stats.ValidMinTempCount++
			minSum += *obs.MinTemperatureCelsius
		}
		if obs.PrecipitationCm != nil {
			stats.ValidPrecipitationCount++
			precipSum += *obs.PrecipitationCm
		}
	}

	if stats.ValidMaxTempCount > 0 {
		avg := maxSum / float64(stats.ValidMaxTempCount)
		stats.AvgMaxTemperatureCelsius = &avg
	}
	if stats.ValidMinTempCount > 0 {
		avg := minSum / float64(stats.ValidMinTempCount)
		stats.AvgMinTemperatureCelsius = &avg
	}
	if stats.ValidPrecipitationCount > 0 {
		total := precipSum
		stats.TotalPrecipitationCm = &total
	}

	return stats, nil
}

// HealthCheck always succeeds for the in-memory repository.
func (m *MemoryRepository) HealthCheck(_ context.Context) error {
	return nil
}
