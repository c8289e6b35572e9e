package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseRecordLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    *RawWeatherRecord
		wantErr bool
	}{
		{
			name: "valid line",
			line: "20230115\t250\t150\t100",
			want: &RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: 250,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  100,
			},
		},
		{
			name: "sentinel values",
			line: "19850101\t-9999\t-9999\t-9999",
			want: &RawWeatherRecord{
				Date:                 "19850101",
				MaxTemperatureTenths: -9999,
				MinTemperatureTenths: -9999,
				PrecipitationTenths:  -9999,
			},
		},
		{
			name: "negative temperatures",
			line: "20000210\t-50\t-128\t0",
			want: &RawWeatherRecord{
				Date:                 "20000210",
				MaxTemperatureTenths: -50,
				MinTemperatureTenths: -128,
				PrecipitationTenths:  0,
			},
		},
		{
			name:    "too few fields",
			line:    "20230115\t250\t150",
			wantErr: true,
		},
		{
			name:    "non-numeric temperature",
			line:    "20230115\tabc\t150\t100",
			wantErr: true,
		},
		{
			name:    "non-numeric precipitation",
			line:    "20230115\t250\t150\tx",
			wantErr: true,
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecordLine(tt.line)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRecordLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var malformed *MalformedRecordError
				if !errors.As(err, &malformed) {
					t.Fatalf("error = %T, want *MalformedRecordError", err)
				}
				return
			}

			if *got != *tt.want {
				t.Errorf("ParseRecordLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRawWeatherRecord_ToObservation(t *testing.T) {
	tests := []struct {
		name        string
		record      RawWeatherRecord
		stationID   string
		wantErr     bool
		checkValues func(*testing.T, *WeatherObservation)
	}{
		{
			name: "valid record with all values",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: 250,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  100,
			},
			stationID: "USC00110072",
			checkValues: func(t *testing.T, obs *WeatherObservation) {
				if obs.StationID != "USC00110072" {
					t.Errorf("StationID = %v, want USC00110072", obs.StationID)
				}

				expectedDate := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
				if !obs.ObservationDate.Equal(expectedDate) {
					t.Errorf("ObservationDate = %v, want %v", obs.ObservationDate, expectedDate)
				}

				checkFloat(t, "MaxTemperatureCelsius", obs.MaxTemperatureCelsius, 25.0)
				checkFloat(t, "MinTemperatureCelsius", obs.MinTemperatureCelsius, 15.0)
				checkFloat(t, "PrecipitationCm", obs.PrecipitationCm, 1.0)
			},
		},
		{
			name: "sentinel max temperature becomes nil",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: -9999,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  100,
			},
			stationID: "USC00110072",
			checkValues: func(t *testing.T, obs *WeatherObservation) {
				if obs.MaxTemperatureCelsius != nil {
					t.Error("MaxTemperatureCelsius should be nil for sentinel")
				}
				checkFloat(t, "MinTemperatureCelsius", obs.MinTemperatureCelsius, 15.0)
				checkFloat(t, "PrecipitationCm", obs.PrecipitationCm, 1.0)
			},
		},
		{
			name: "sentinel precipitation becomes nil",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: 250,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  -9999,
			},
			stationID: "USC00110072",
			checkValues: func(t *testing.T, obs *WeatherObservation) {
				if obs.PrecipitationCm != nil {
					t.Error("PrecipitationCm should be nil for sentinel")
				}
			},
		},
		{
			name: "all sentinel fields become nil",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: -9999,
				MinTemperatureTenths: -9999,
				PrecipitationTenths:  -9999,
			},
			stationID: "USC00110072",
			checkValues: func(t *testing.T, obs *WeatherObservation) {
				if obs.MaxTemperatureCelsius != nil || obs.MinTemperatureCelsius != nil || obs.PrecipitationCm != nil {
					t.Error("all fields should be nil for sentinel inputs")
				}
			},
		},
		{
			name: "negative temperatures are valid values",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: -50,
				MinTemperatureTenths: -100,
				PrecipitationTenths:  0,
			},
			stationID: "USC00110072",
			checkValues: func(t *testing.T, obs *WeatherObservation) {
				checkFloat(t, "MaxTemperatureCelsius", obs.MaxTemperatureCelsius, -5.0)
				checkFloat(t, "MinTemperatureCelsius", obs.MinTemperatureCelsius, -10.0)
				checkFloat(t, "PrecipitationCm", obs.PrecipitationCm, 0.0)
			},
		},
		{
			name: "decimal precision under scale factors",
			record: RawWeatherRecord{
				Date:                 "20230115",
				MaxTemperatureTenths: 255,
				MinTemperatureTenths: 144,
				PrecipitationTenths:  123,
			},
			stationID: "USC00110072",
			checkValues: func(t *testing.T, obs *WeatherObservation) {
				checkFloat(t, "MaxTemperatureCelsius", obs.MaxTemperatureCelsius, 25.5)
				checkFloat(t, "MinTemperatureCelsius", obs.MinTemperatureCelsius, 14.4)
				checkFloat(t, "PrecipitationCm", obs.PrecipitationCm, 1.23)
			},
		},
		{
			name: "invalid date format",
			record: RawWeatherRecord{
				Date:                 "2023-01-15",
				MaxTemperatureTenths: 250,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  100,
			},
			stationID: "USC00110072",
			wantErr:   true,
		},
		{
			name: "impossible calendar date",
			record: RawWeatherRecord{
				Date:                 "20231345",
				MaxTemperatureTenths: 250,
				MinTemperatureTenths: 150,
				PrecipitationTenths:  100,
			},
			stationID: "USC00110072",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := tt.record.ToObservation(tt.stationID)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ToObservation() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && tt.checkValues != nil {
				tt.checkValues(t, obs)
			}
		})
	}
}

// Round trip: formatting the converted values back into tenths reproduces
// the original raw integers.
func TestParseObservation_RoundTrip(t *testing.T) {
	lines := []struct {
		line                       string
		maxTenths, minTenths, pcpT int
	}{
		{"19850101\t-22\t-128\t94", -22, -128, 94},
		{"20141231\t389\t211\t0", 389, 211, 0},
		{"20000229\t5\t-5\t1", 5, -5, 1},
	}

	for _, tt := range lines {
		obs, err := ParseObservation("USC00257715", tt.line)
		if err != nil {
			t.Fatalf("ParseObservation(%q) error = %v", tt.line, err)
		}

		if got := int(*obs.MaxTemperatureCelsius * 10); got != tt.maxTenths {
			t.Errorf("max temp round trip = %d, want %d", got, tt.maxTenths)
		}
		if got := int(*obs.MinTemperatureCelsius * 10); got != tt.minTenths {
			t.Errorf("min temp round trip = %d, want %d", got, tt.minTenths)
		}
		if got := int(*obs.PrecipitationCm * 100); got != tt.pcpT {
			t.Errorf("precipitation round trip = %d, want %d", got, tt.pcpT)
		}
	}
}

func TestObservationYear(t *testing.T) {
	obs, err := ParseObservation("USC00110072", "19910704\t300\t180\t25")
	if err != nil {
		t.Fatalf("ParseObservation() error = %v", err)
	}
	if obs.Year() != 1991 {
		t.Errorf("Year() = %d, want 1991", obs.Year())
	}
}

func TestMalformedRecordError(t *testing.T) {
	err := &MalformedRecordError{
		Field:   "date",
		Value:   "invalid",
		Message: "invalid date token, expected YYYYMMDD",
	}

	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
	if err.IsTransient() {
		t.Error("MalformedRecordError should not be transient")
	}
}

func checkFloat(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s should not be nil", name)
		return
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}
