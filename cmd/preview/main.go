// Command preview parses weather data files without touching storage and
// reports what an ingestion run would see: valid, malformed, and
// missing-field counts per file. Useful for vetting new data drops.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"weather-pipeline/internal/models"
)

func main() {
	dataDir := flag.String("data-dir", "./wx_data", "Directory containing weather data files")
	showErrors := flag.Bool("show-errors", false, "Print every malformed line")
	flag.Parse()

	files, err := filepath.Glob(filepath.Join(*dataDir, "*.txt"))
	if err != nil || len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no data files found in %s\n", *dataDir)
		os.Exit(1)
	}

	fmt.Printf("Found %d weather station files\n\n", len(files))

	var totalLines, totalValid, totalMalformed, totalMissing int

	for _, filePath := range files {
		fileName := filepath.Base(filePath)
		stationID := strings.TrimSuffix(fileName, filepath.Ext(fileName))

		file, err := os.Open(filePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping unreadable file %s: %v\n", filePath, err)
			continue
		}

		var lines, valid, malformed, missing int
		lineNo := 0
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if line == "" {
				continue
			}
			lines++

			obs, err := models.ParseObservation(stationID, line)
			if err != nil {
				malformed++
				if *showErrors {
					fmt.Printf("  %s:%d: %v\n", fileName, lineNo, err)
				}
				continue
			}

			valid++
			if obs.MaxTemperatureCelsius == nil || obs.MinTemperatureCelsius == nil || obs.PrecipitationCm == nil {
				missing++
			}
		}
		file.Close()

		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "error reading %s: %v\n", filePath, err)
		}

		fmt.Printf("%-24s lines=%-8d valid=%-8d malformed=%-6d with_missing_fields=%d\n",
			stationID, lines, valid, malformed, missing)

		totalLines += lines
		totalValid += valid
		totalMalformed += malformed
		totalMissing += missing
	}

	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("%-24s lines=%-8d valid=%-8d malformed=%-6d with_missing_fields=%d\n",
		"TOTAL", totalLines, totalValid, totalMalformed, totalMissing)

	if totalMalformed > 0 {
		os.Exit(2)
	}
}
