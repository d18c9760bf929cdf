package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"pm25cast/internal/config"
	"pm25cast/internal/database"
	"pm25cast/internal/logger"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type locationInserter interface {
	InsertLocation(ctx context.Context, name string, latitude, longitude float64) error
}

func main() {
	csvPath := flag.String("csv", "locations_seed.csv", "CSV file with name,latitude,longitude rows")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Get().WithError(err).Warn("failed to load .env")
	}
	if _, err := config.Load("./config.yaml"); err != nil {
		logger.Get().WithError(err).Fatal("failed to load config")
	}
	log := logger.WithComponent("seed")

	db, err := database.NewDB(config.GetDatabaseDSN())
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	file, err := os.Open(*csvPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open CSV file")
	}
	defer file.Close()

	inserted, skipped, err := seed(context.Background(), db, file, log)
	if err != nil {
		log.WithError(err).Fatal("seed aborted")
	}
	log.WithFields(logrus.Fields{"inserted": inserted, "skipped": skipped}).Info("import complete")
}

// seed reads a header row followed by name,latitude,longitude records.
// Malformed rows and existing names are skipped.
func seed(ctx context.Context, db locationInserter, r io.Reader, log *logrus.Entry) (inserted, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	log.WithField("header", header).Debug("reading locations")

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return inserted, skipped, fmt.Errorf("failed to read CSV record: %w", err)
		}

		name, lat, lon, ok := parseRecord(record)
		if !ok {
			log.WithField("record", record).Warn("skipping invalid record")
			skipped++
			continue
		}

		if err := db.InsertLocation(ctx, name, lat, lon); err != nil {
			if errors.Is(err, database.ErrDuplicateLocation) {
				log.WithField("location", name).Debug("location already exists")
			} else {
				log.WithError(err).WithField("location", name).Warn("failed to insert location")
			}
			skipped++
			continue
		}

		inserted++
		if inserted%100 == 0 {
			log.WithField("inserted", inserted).Info("inserting locations")
		}
	}
	return inserted, skipped, nil
}

func parseRecord(record []string) (string, float64, float64, bool) {
	if len(record) < 3 {
		return "", 0, 0, false
	}
	name := strings.TrimSpace(record[0])
	lat, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return "", 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil || lon < -180 || lon > 180 {
		return "", 0, 0, false
	}
	return name, lat, lon, name != ""
}
