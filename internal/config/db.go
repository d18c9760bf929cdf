package config

import (
	"fmt"
	"os"
)

// Returns the database connection string
// It checks for environment variables first, then falls back to a default
func GetDatabaseDSN() string {
	if dsn, ok := DatabaseDSNFromEnv(); ok {
		return dsn
	}
	return "pm25:pm25password@tcp(localhost:3306)/pm25cast?parseTime=true"
}

// DatabaseDSNFromEnv reports whether a database was configured explicitly.
// The HTTP service only enables location forecasts when it was.
func DatabaseDSNFromEnv() (string, bool) {
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_NAME")

	if user != "" && password != "" && host != "" && port != "" && database != "" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, password, host, port, database), true
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn, true
	}

	return "", false
}
