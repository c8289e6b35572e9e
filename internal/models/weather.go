package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MissingValueSentinel marks a field with no reading in the raw data files.
const MissingValueSentinel = -9999

// rawDateLayout is the fixed-width date token used by the raw files.
const rawDateLayout = "20060102"

// WeatherStation represents a weather monitoring station.
type WeatherStation struct {
	StationID string    `json:"station_id" db:"station_id"`
	State     string    `json:"state" db:"state"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WeatherObservation represents a single station-day reading.
// Fields that carried the missing-value sentinel are nil, never zero.
type WeatherObservation struct {
	ID                    int64     `json:"id" db:"id"`
	StationID             string    `json:"station_id" db:"station_id"`
	ObservationDate       time.Time `json:"observation_date" db:"observation_date"`
	MaxTemperatureCelsius *float64  `json:"max_temperature_celsius,omitempty" db:"max_temperature_celsius"`
	MinTemperatureCelsius *float64  `json:"min_temperature_celsius,omitempty" db:"min_temperature_celsius"`
	PrecipitationCm       *float64  `json:"precipitation_cm,omitempty" db:"precipitation_cm"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}

// Year returns the calendar year the observation belongs to.
func (o *WeatherObservation) Year() int {
	return o.ObservationDate.Year()
}

// WeatherStatistics represents a derived yearly aggregate for one station.
// Averages and the precipitation total are nil when the year had zero
// non-null inputs for that field; each field is independent of the others.
type WeatherStatistics struct {
	ID                       int64     `json:"id" db:"id"`
	StationID                string    `json:"station_id" db:"station_id"`
	Year                     int       `json:"year" db:"year"`
	AvgMaxTemperatureCelsius *float64  `json:"avg_max_temperature_celsius,omitempty" db:"avg_max_temperature_celsius"`
	AvgMinTemperatureCelsius *float64  `json:"avg_min_temperature_celsius,omitempty" db:"avg_min_temperature_celsius"`
	TotalPrecipitationCm     *float64  `json:"total_precipitation_cm,omitempty" db:"total_precipitation_cm"`
	ObservationCount         int       `json:"observation_count" db:"observation_count"`
	ValidMaxTempCount        int       `json:"valid_max_temp_count" db:"valid_max_temp_count"`
	ValidMinTempCount        int       `json:"valid_min_temp_count" db:"valid_min_temp_count"`
	ValidPrecipitationCount  int       `json:"valid_precipitation_count" db:"valid_precipitation_count"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time `json:"updated_at" db:"updated_at"`
}

// RawWeatherRecord is one line of a station data file before unit
// conversion. Numeric fields are tenths-scaled integers and may carry the
// missing-value sentinel.
type RawWeatherRecord struct {
	Date                 string
	MaxTemperatureTenths int // 0.1°C
	MinTemperatureTenths int // 0.1°C
	PrecipitationTenths  int // 0.1mm
}

// ParseRecordLine parses one tab-separated line from a station data file:
// YYYYMMDD, max temp (0.1°C), min temp (0.1°C), precipitation (0.1mm).
func ParseRecordLine(line string) (*RawWeatherRecord, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 4 {
		return nil, &MalformedRecordError{
			Field:   "line",
			Value:   line,
			Message: fmt.Sprintf("expected 4 tab-separated fields, got %d", len(parts)),
		}
	}

	maxTemp, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, &MalformedRecordError{Field: "max_temp", Value: parts[1], Message: "not an integer"}
	}

	minTemp, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, &MalformedRecordError{Field: "min_temp", Value: parts[2], Message: "not an integer"}
	}

	precip, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil {
		return nil, &MalformedRecordError{Field: "precipitation", Value: parts[3], Message: "not an integer"}
	}

	return &RawWeatherRecord{
		Date:                 strings.TrimSpace(parts[0]),
		MaxTemperatureTenths: maxTemp,
		MinTemperatureTenths: minTemp,
		PrecipitationTenths:  precip,
	}, nil
}

// ToObservation converts a raw record to a WeatherObservation, mapping the
// sentinel to nil and converting units (temps /10 to °C, precip /100 to cm).
func (r *RawWeatherRecord) ToObservation(stationID string) (*WeatherObservation, error) {
	date, err := time.Parse(rawDateLayout, r.Date)
	if err != nil {
		return nil, &MalformedRecordError{
			Field:   "date",
			Value:   r.Date,
			Message: "invalid date token, expected YYYYMMDD",
		}
	}

	obs := &WeatherObservation{
		StationID:       stationID,
		ObservationDate: date,
		CreatedAt:       time.Now().UTC(),
	}

	if r.MaxTemperatureTenths != MissingValueSentinel {
		temp := float64(r.MaxTemperatureTenths) / 10.0
		obs.MaxTemperatureCelsius = &temp
	}

	if r.MinTemperatureTenths != MissingValueSentinel {
		temp := float64(r.MinTemperatureTenths) / 10.0
		obs.MinTemperatureCelsius = &temp
	}

	if r.PrecipitationTenths != MissingValueSentinel {
		precip := float64(r.PrecipitationTenths) / 100.0
		obs.PrecipitationCm = &precip
	}

	return obs, nil
}

// ParseObservation parses one raw line into an observation for the given
// station. Pure: no side effects, every failure is a *MalformedRecordError.
func ParseObservation(stationID, line string) (*WeatherObservation, error) {
	record, err := ParseRecordLine(line)
	if err != nil {
		return nil, err
	}
	return record.ToObservation(stationID)
}

// MalformedRecordError reports a raw line that could not be parsed into an
// observation. Such lines are skipped and logged, never fatal to a run.
type MalformedRecordError struct {
	Field   string
	Value   string
	Message string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: %s %q: %s", e.Field, e.Value, e.Message)
}

// IsTransient returns false as malformed records are permanent.
func (e *MalformedRecordError) IsTransient() bool {
	return false
}
