package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ziad784/whatsapp-bot2/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS print_jobs (
				id TEXT PRIMARY KEY,
				chat_id TEXT NOT NULL,
				file_name TEXT NOT NULL,
				pages TEXT NOT NULL,
				copies INTEGER NOT NULL,
				color INTEGER NOT NULL,
				size TEXT NOT NULL,
				total_cost INTEGER NOT NULL,
				payment_method TEXT NOT NULL,
				payment_reference TEXT,
				status TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_print_jobs_chat ON print_jobs(chat_id)`,
			`CREATE INDEX IF NOT EXISTS idx_print_jobs_created_at ON print_jobs(created_at DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS print_jobs (
				id VARCHAR(36) NOT NULL,
				chat_id VARCHAR(255) NOT NULL,
				file_name VARCHAR(255) NOT NULL,
				pages VARCHAR(64) NOT NULL,
				copies INT NOT NULL,
				color TINYINT(1) NOT NULL,
				size VARCHAR(8) NOT NULL,
				total_cost BIGINT NOT NULL,
				payment_method VARCHAR(16) NOT NULL,
				payment_reference VARCHAR(255),
				status VARCHAR(16) NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_print_jobs_chat (chat_id),
				INDEX idx_print_jobs_created_at (created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
