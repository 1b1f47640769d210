package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"hostelpay/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	mu     sync.RWMutex
	rooms  map[string]models.Room
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+dsnParams(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers anyway; one connection also keeps :memory: databases whole.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		rooms:  make(map[string]models.Room),
		logger: logger,
	}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func dsnParams(path string) string {
	if strings.Contains(path, "?") {
		return ""
	}
	return "?_foreign_keys=on&_busy_timeout=5000"
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			hostel_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			check_in TEXT NOT NULL,
			check_out TEXT NOT NULL,
			duration INTEGER NOT NULL DEFAULT 0,
			total_amount REAL NOT NULL,
			payment_amount REAL NOT NULL,
			amount_paid REAL NOT NULL DEFAULT 0,
			payment_type TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			customer_name TEXT NOT NULL,
			customer_email TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS payment_attempts (
			reference TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL REFERENCES bookings(id),
			method TEXT NOT NULL,
			network TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL,
			status TEXT NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			resolved_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS task_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_type TEXT NOT NULL,
			reference TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL,
			processed_at DATETIME,
			next_retry_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_room ON bookings(hostel_id, room_id, check_in, check_out)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_booking ON payment_attempts(booking_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_status ON payment_attempts(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_task_queue_status ON task_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
