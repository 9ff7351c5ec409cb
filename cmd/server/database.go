package main

import (
	"database/sql"
	"fmt"

	"github.com/nutshimit/mashin-registry/internal/db"
)


// withDatabase loads config, opens the database for fn and closes it after.
func withDatabase(fn func(*sql.DB) error) error {
	return withConfigDatabase(func(_ string, database *sql.DB) error {
		return fn(database)
	})
}

// withConfigDatabase is withDatabase that also passes the configured
// forbidden word file.
func withConfigDatabase(fn func(wordsFile string, database *sql.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	return fn(cfg.Registry.ForbiddenWordsFile, database)
}
