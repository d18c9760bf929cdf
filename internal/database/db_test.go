package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"pm25cast/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &DB{conn: conn}, mock
}

func TestInitSchema(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS measurements").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS locations").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.initSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema_Error(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS measurements").WillReturnError(errors.New("access denied"))

	assert.Error(t, db.initSchema(context.Background()))
}

func TestStoreMeasurements(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ms := []models.Measurement{
		{Location: "Denver", Timestamp: ts, PM25: 8.4},
		{Location: "Denver", Timestamp: ts.Add(time.Hour), PM25: 9.1},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO measurements")
	prep.ExpectExec().WithArgs("Denver", ts, 8.4).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("Denver", ts.Add(time.Hour), 9.1).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	n, err := db.StoreMeasurements(context.Background(), ms)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMeasurements_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO measurements")
	prep.ExpectExec().WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := db.StoreMeasurements(context.Background(), []models.Measurement{{Location: "Denver", Timestamp: ts, PM25: 1}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMeasurements_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	n, err := db.StoreMeasurements(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSeries(t *testing.T) {
	db, mock := newMockDB(t)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"timestamp", "pm25"}).
		AddRow(since, 10.0).
		AddRow(since.Add(time.Hour), 12.5)
	mock.ExpectQuery("SELECT timestamp, pm25 FROM measurements").WithArgs("Denver", since).WillReturnRows(rows)

	s, err := db.GetSeries(context.Background(), "Denver", since)
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, since, s[0].Timestamp)
	assert.Equal(t, 12.5, s[1].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSeries_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT timestamp, pm25 FROM measurements").WillReturnError(sql.ErrConnDone)

	_, err := db.GetSeries(context.Background(), "Denver", time.Now())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestGetLocationsWithData(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT DISTINCT location FROM measurements").
		WillReturnRows(sqlmock.NewRows([]string{"location"}).AddRow("Denver").AddRow("Boise"))

	got, err := db.GetLocationsWithData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Denver": true, "Boise": true}, got)
}

func TestInsertLocation(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO locations").WithArgs("Denver", 39.7392, -104.9903).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO locations").WithArgs("Denver", 39.7392, -104.9903).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'Denver'"})
	mock.ExpectExec("INSERT INTO locations").WillReturnError(errors.New("table is read only"))

	ctx := context.Background()
	assert.NoError(t, db.InsertLocation(ctx, "Denver", 39.7392, -104.9903))
	assert.ErrorIs(t, db.InsertLocation(ctx, "Denver", 39.7392, -104.9903), ErrDuplicateLocation)

	err := db.InsertLocation(ctx, "Boise", 43.6, -116.2)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateLocation)
}

func TestGetLocationByName(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id, name, latitude, longitude FROM locations WHERE name").WithArgs("Denver").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "latitude", "longitude"}).AddRow(7, "Denver", 39.7392, -104.9903))
	mock.ExpectQuery("SELECT id, name, latitude, longitude FROM locations WHERE name").WithArgs("Atlantis").
		WillReturnError(sql.ErrNoRows)

	loc, err := db.GetLocationByName(context.Background(), "Denver")
	require.NoError(t, err)
	assert.Equal(t, int64(7), loc.ID)
	assert.Equal(t, -104.9903, loc.Longitude)

	_, err = db.GetLocationByName(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

func TestGetAllLocations(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id, name, latitude, longitude FROM locations ORDER BY name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "latitude", "longitude"}).
			AddRow(2, "Boise", 43.6, -116.2).
			AddRow(1, "Denver", 39.7, -104.9))

	locs, err := db.GetAllLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Boise", locs[0].Name)
}
