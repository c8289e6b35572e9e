package services

import (
	"context"
	"testing"
	"time"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/repository"
)

func newStatisticsService(repo repository.WeatherRepository) *StatisticsService {
	return NewStatisticsService(repo, testLogger(), testMetrics)
}

func storeObservation(t *testing.T, repo repository.WeatherRepository, stationID, date string, maxT, minT, precip *float64) {
	t.Helper()
	inserted, err := repo.InsertObservationIfAbsent(context.Background(), &models.WeatherObservation{
		StationID:             stationID,
		ObservationDate:       mustDate(t, date),
		MaxTemperatureCelsius: maxT,
		MinTemperatureCelsius: minT,
		PrecipitationCm:       precip,
		CreatedAt:             time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertObservationIfAbsent() error = %v", err)
	}
	if !inserted {
		t.Fatalf("observation %s/%s already present", stationID, date)
	}
}

func fetchStatistics(t *testing.T, repo repository.WeatherRepository, stationID string, year int) *models.WeatherStatistics {
	t.Helper()
	rows, _, err := repo.GetStatistics(context.Background(), repository.StatisticsFilter{
		StationID: &stationID,
		Year:      &year,
		Limit:     1,
	})
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("GetStatistics() returned %d rows, want 1", len(rows))
	}
	return rows[0]
}

// Missing fields drop out of their own aggregate without disturbing the
// others: two days with a missing min and a missing precipitation still
// yield averages over the values that were present.
func TestCalculateAllStatistics(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newStatisticsService(repo)

	storeObservation(t, repo, "USC001", "2020-01-01", fptr(15.0), nil, fptr(0.5))
	storeObservation(t, repo, "USC001", "2020-01-02", fptr(5.0), fptr(-2.0), nil)

	result, err := svc.CalculateAllStatistics(ctx)
	if err != nil {
		t.Fatalf("CalculateAllStatistics() error = %v", err)
	}
	if result.GroupsUpserted != 1 {
		t.Errorf("GroupsUpserted = %d, want 1", result.GroupsUpserted)
	}
	if result.Observations != 2 {
		t.Errorf("Observations = %d, want 2", result.Observations)
	}

	stats := fetchStatistics(t, repo, "USC001", 2020)
	checkStatFloat(t, "AvgMaxTemperatureCelsius", stats.AvgMaxTemperatureCelsius, 10.0)
	checkStatFloat(t, "AvgMinTemperatureCelsius", stats.AvgMinTemperatureCelsius, -2.0)
	checkStatFloat(t, "TotalPrecipitationCm", stats.TotalPrecipitationCm, 0.5)
	if stats.ObservationCount != 2 {
		t.Errorf("ObservationCount = %d, want 2", stats.ObservationCount)
	}
	if stats.ValidMinTempCount != 1 {
		t.Errorf("ValidMinTempCount = %d, want 1", stats.ValidMinTempCount)
	}
}

// A field with no values at all stays nil while the other fields aggregate.
func TestCalculateAllStatistics_FieldIndependence(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newStatisticsService(repo)

	storeObservation(t, repo, "USC001", "2019-06-01", nil, nil, fptr(1.2))
	storeObservation(t, repo, "USC001", "2019-06-02", nil, nil, fptr(0.8))

	if _, err := svc.CalculateAllStatistics(ctx); err != nil {
		t.Fatalf("CalculateAllStatistics() error = %v", err)
	}

	stats := fetchStatistics(t, repo, "USC001", 2019)
	if stats.AvgMaxTemperatureCelsius != nil {
		t.Errorf("AvgMaxTemperatureCelsius = %v, want nil", *stats.AvgMaxTemperatureCelsius)
	}
	if stats.AvgMinTemperatureCelsius != nil {
		t.Errorf("AvgMinTemperatureCelsius = %v, want nil", *stats.AvgMinTemperatureCelsius)
	}
	checkStatFloat(t, "TotalPrecipitationCm", stats.TotalPrecipitationCm, 2.0)
	if stats.ObservationCount != 2 {
		t.Errorf("ObservationCount = %d, want 2", stats.ObservationCount)
	}
}

func TestCalculateAllStatistics_MultipleGroups(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newStatisticsService(repo)

	storeObservation(t, repo, "USC001", "2019-12-31", fptr(2.0), fptr(-4.0), fptr(0.1))
	storeObservation(t, repo, "USC001", "2020-01-01", fptr(4.0), fptr(-2.0), fptr(0.3))
	storeObservation(t, repo, "USC002", "2020-07-10", fptr(30.0), fptr(18.0), nil)
	storeObservation(t, repo, "USC002", "2020-07-11", fptr(32.0), fptr(20.0), fptr(0.0))

	result, err := svc.CalculateAllStatistics(ctx)
	if err != nil {
		t.Fatalf("CalculateAllStatistics() error = %v", err)
	}
	if result.GroupsUpserted != 3 {
		t.Errorf("GroupsUpserted = %d, want 3", result.GroupsUpserted)
	}

	stats := fetchStatistics(t, repo, "USC001", 2019)
	checkStatFloat(t, "AvgMaxTemperatureCelsius", stats.AvgMaxTemperatureCelsius, 2.0)

	stats = fetchStatistics(t, repo, "USC002", 2020)
	checkStatFloat(t, "AvgMaxTemperatureCelsius", stats.AvgMaxTemperatureCelsius, 31.0)
	checkStatFloat(t, "AvgMinTemperatureCelsius", stats.AvgMinTemperatureCelsius, 19.0)
	checkStatFloat(t, "TotalPrecipitationCm", stats.TotalPrecipitationCm, 0.0)
	if stats.ValidPrecipitationCount != 1 {
		t.Errorf("ValidPrecipitationCount = %d, want 1", stats.ValidPrecipitationCount)
	}
}

// Re-running aggregation over unchanged observations replaces rows in place
// with identical values instead of accumulating duplicates.
func TestCalculateAllStatistics_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newStatisticsService(repo)

	storeObservation(t, repo, "USC001", "2020-01-01", fptr(15.0), nil, fptr(0.5))
	storeObservation(t, repo, "USC001", "2020-01-02", fptr(5.0), fptr(-2.0), nil)

	if _, err := svc.CalculateAllStatistics(ctx); err != nil {
		t.Fatalf("first CalculateAllStatistics() error = %v", err)
	}
	first := fetchStatistics(t, repo, "USC001", 2020)

	if _, err := svc.CalculateAllStatistics(ctx); err != nil {
		t.Fatalf("second CalculateAllStatistics() error = %v", err)
	}

	_, total, err := repo.GetStatistics(ctx, repository.StatisticsFilter{Limit: 100})
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if total != 1 {
		t.Errorf("statistics rows = %d, want 1 after re-run", total)
	}

	second := fetchStatistics(t, repo, "USC001", 2020)
	if second.ID != first.ID {
		t.Errorf("re-run changed row identity: %d -> %d", first.ID, second.ID)
	}
	checkStatFloat(t, "AvgMaxTemperatureCelsius", second.AvgMaxTemperatureCelsius, *first.AvgMaxTemperatureCelsius)
	checkStatFloat(t, "TotalPrecipitationCm", second.TotalPrecipitationCm, *first.TotalPrecipitationCm)
}

func TestRecalculateStationYear(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newStatisticsService(repo)

	storeObservation(t, repo, "USC001", "2020-01-01", fptr(15.0), nil, fptr(0.5))
	storeObservation(t, repo, "USC001", "2020-01-02", fptr(5.0), fptr(-2.0), nil)
	storeObservation(t, repo, "USC001", "2021-01-01", fptr(1.0), fptr(0.0), fptr(0.0))

	stats, err := svc.RecalculateStationYear(ctx, "USC001", 2020)
	if err != nil {
		t.Fatalf("RecalculateStationYear() error = %v", err)
	}

	// The SQL-style recompute and the streaming fold must agree.
	checkStatFloat(t, "AvgMaxTemperatureCelsius", stats.AvgMaxTemperatureCelsius, 10.0)
	checkStatFloat(t, "AvgMinTemperatureCelsius", stats.AvgMinTemperatureCelsius, -2.0)
	checkStatFloat(t, "TotalPrecipitationCm", stats.TotalPrecipitationCm, 0.5)
	if stats.ObservationCount != 2 {
		t.Errorf("ObservationCount = %d, want 2", stats.ObservationCount)
	}

	stored := fetchStatistics(t, repo, "USC001", 2020)
	checkStatFloat(t, "AvgMaxTemperatureCelsius", stored.AvgMaxTemperatureCelsius, 10.0)
}

// A station-year with no observations is reported but never persisted.
func TestRecalculateStationYear_EmptyGroupNotPersisted(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := newStatisticsService(repo)

	storeObservation(t, repo, "USC001", "2020-01-01", fptr(15.0), nil, nil)

	stats, err := svc.RecalculateStationYear(ctx, "USC001", 1999)
	if err != nil {
		t.Fatalf("RecalculateStationYear() error = %v", err)
	}
	if stats.ObservationCount != 0 {
		t.Errorf("ObservationCount = %d, want 0", stats.ObservationCount)
	}

	_, total, err := repo.GetStatistics(ctx, repository.StatisticsFilter{Limit: 100})
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if total != 0 {
		t.Errorf("statistics rows = %d, want 0", total)
	}
}

func TestCalculateAllStatistics_EmptyStore(t *testing.T) {
	svc := newStatisticsService(repository.NewMemoryRepository())

	result, err := svc.CalculateAllStatistics(context.Background())
	if err != nil {
		t.Fatalf("CalculateAllStatistics() error = %v", err)
	}
	if result.GroupsUpserted != 0 || result.Observations != 0 {
		t.Errorf("result = %+v, want zero groups and observations", result)
	}
}

func checkStatFloat(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s should not be nil", name)
		return
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}
