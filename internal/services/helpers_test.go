package services

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// One collector for the whole test binary: prometheus collectors register
// globally and re-registration panics.
var testMetrics = metrics.NewCollector("weather_services_test")

func testLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("test", "0.0.0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func writeStationFile(t *testing.T, dir, stationID string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, stationID+".txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write station file: %v", err)
	}
	return path
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad test date %q: %v", value, err)
	}
	return date
}

func fptr(v float64) *float64 {
	return &v
}
