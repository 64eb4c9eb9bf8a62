//go:build ignore

// import_speedcsv loads the CSV log written by the old cron speed test
// (Timestamp, Ping (ms), Download Speed (Mbit/s), Upload Speed (Mbit/s))
// into the history database.
//
//	go run scripts/import_speedcsv.go -csv /var/www/html/speed/speedtest_results.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/ispwatch/internal/adapters/sqlite"
	"github.com/example/ispwatch/internal/config"
	"github.com/example/ispwatch/internal/db"
	"github.com/example/ispwatch/internal/ports/secondary"
)

const timestampLayout = "2006-01-02 15:04:05"

func main() {
	csvPath := flag.String("csv", "", "CSV file to import")
	envFile := flag.String("env-file", "", "Path to a .env file")
	dryRun := flag.Bool("dry-run", false, "Preview import without executing")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -csv is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	records, skipped, err := readRows(f, cfg.Location)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading CSV: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d measurement(s), skipped %d incomplete row(s)\n", len(records), skipped)
	if len(records) == 0 {
		return
	}
	fmt.Printf("  first: %s\n", records[0].TakenAt.In(cfg.Location).Format(timestampLayout))
	fmt.Printf("  last:  %s\n", records[len(records)-1].TakenAt.In(cfg.Location).Format(timestampLayout))

	if *dryRun {
		fmt.Println("=== DRY RUN - No changes made ===")
		return
	}

	conn, err := db.Open(cfg.DBPath, db.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	inserted, err := sqlite.NewMeasurementRepository(conn).Merge(context.Background(), records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Import complete: %d new, %d already present ===\n", inserted, len(records)-inserted)
}

// readRows parses the CSV. Rows where the speed test failed carry N/A and
// are skipped. Timestamps are naive local times in loc.
func readRows(r io.Reader, loc *time.Location) ([]*secondary.MeasurementRecord, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var (
		records []*secondary.MeasurementRecord
		skipped int
		header  = true
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		if header {
			header = false
			if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "Timestamp") {
				continue
			}
		}
		if len(row) < 4 {
			skipped++
			continue
		}

		takenAt, err := time.ParseInLocation(timestampLayout, strings.TrimSpace(row[0]), loc)
		if err != nil {
			skipped++
			continue
		}
		ping, errPing := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		down, errDown := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		up, errUp := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if errPing != nil || errDown != nil || errUp != nil {
			skipped++
			continue
		}

		records = append(records, &secondary.MeasurementRecord{
			TakenAt:      takenAt.UTC(),
			DownloadMbps: down,
			UploadMbps:   up,
			LatencyMs:    ping,
			Raw:          []byte(strings.Join(row, ",")),
			Origin:       "legacy",
		})
	}
	return records, skipped, nil
}
