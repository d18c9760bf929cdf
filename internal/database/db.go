package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pm25cast/internal/metrics"
	"pm25cast/internal/models"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrLocationNotFound  = errors.New("location not found")
	ErrDuplicateLocation = errors.New("duplicate location")
)

const mysqlDuplicateEntry = 1062

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema
// dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := db.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the necessary tables
func (db *DB) initSchema(ctx context.Context) error {
	// MySQL doesn't support multiple statements in one Exec
	statements := []string{
		`CREATE TABLE IF NOT EXISTS measurements (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			location VARCHAR(255) NOT NULL,
			timestamp DATETIME NOT NULL,
			pm25 DOUBLE NOT NULL,
			UNIQUE KEY uq_measurements_location_ts (location, timestamp),
			INDEX idx_measurements_timestamp (timestamp)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS locations (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			UNIQUE KEY uq_locations_name (name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (db *DB) recordPoolStats() {
	stats := db.conn.Stats()
	metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
}

// StoreMeasurements upserts hourly values; re-collected hours overwrite the
// previous value.
func (db *DB) StoreMeasurements(ctx context.Context, ms []models.Measurement) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	defer db.recordPoolStats()

	queryStart := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO measurements (location, timestamp, pm25) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE pm25 = VALUES(pm25)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range ms {
		if _, err = stmt.ExecContext(ctx, m.Location, m.Timestamp, m.PM25); err != nil {
			metrics.RecordDBQuery("INSERT", "measurements", time.Since(queryStart), err)
			return 0, fmt.Errorf("failed to insert measurement for %s at %s: %w", m.Location, m.Timestamp, err)
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("INSERT", "measurements", time.Since(queryStart), err)
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(ms), nil
}

// GetSeries returns a location's measurements since the given time, oldest
// first.
func (db *DB) GetSeries(ctx context.Context, location string, since time.Time) (models.Series, error) {
	queryStart := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT timestamp, pm25 FROM measurements WHERE location = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		location, since)
	metrics.RecordDBQuery("SELECT", "measurements", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var s models.Series
	for rows.Next() {
		var p models.TimePoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		s = append(s, p)
	}

	return s, rows.Err()
}

// GetLocationsWithData returns a set of all locations that have data in the database
func (db *DB) GetLocationsWithData(ctx context.Context) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT location FROM measurements`)
	if err != nil {
		return nil, fmt.Errorf("failed to get locations with data: %w", err)
	}
	defer rows.Close()

	locations := make(map[string]bool)
	for rows.Next() {
		var location string
		if err := rows.Scan(&location); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations[location] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}

	return locations, nil
}

// InsertLocation inserts a new location into the database
func (db *DB) InsertLocation(ctx context.Context, name string, latitude, longitude float64) error {
	_, err := db.conn.ExecContext(ctx, `INSERT INTO locations (name, latitude, longitude) VALUES (?, ?, ?)`, name, latitude, longitude)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrDuplicateLocation
		}
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

// GetAllLocations retrieves all locations from the database
func (db *DB) GetAllLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, latitude, longitude FROM locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}

	return locations, nil
}

// GetLocationByName retrieves a specific location by name
func (db *DB) GetLocationByName(ctx context.Context, name string) (*models.Location, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, name, latitude, longitude FROM locations WHERE name = ? LIMIT 1`, name)

	var loc models.Location
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
		}
		return nil, fmt.Errorf("failed to scan location: %w", err)
	}

	return &loc, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
