package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pageinsight/internal/config"
	"pageinsight/internal/logging"
)

// Connect opens the analytics store named by APP_DATABASE_URL. A postgres://
// URL selects PostgreSQL; anything else is treated as a SQLite file path.
// Tables and indexes are created if missing.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, errors.New("APP_DATABASE_URL is required (SQLite path or PostgreSQL URL)")
	}

	var dialector gorm.Dialector
	postgresURL := isPostgresURL(dsn)
	if postgresURL {
		dialector = postgres.Open(dsn)
	} else {
		sqliteDSN, err := prepareSQLite(dsn)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqliteDSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Prepared statements keep the postgres migrator off the simple
		// protocol. Every write here is a single statement, so no implicit
		// transaction is needed.
		PrepareStmt:            postgresURL,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger: gormlogger.New(logging.Printf{Level: zapcore.WarnLevel}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}

	if Dialect(db) == "sqlite" {
		// SQLite allows a single writer; one connection keeps in-memory
		// databases coherent and lets the engine serialize writes.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Migrate creates any missing tables and indexes. It is safe to run on
// every start.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Session{},
		&EnhancedSession{},
		&PageView{},
		&Event{},
		&PerformanceMetric{},
		&ErrorRecord{},
		&DailySummary{},
		&APIKey{},
	)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// prepareSQLite creates the parent directory of a file database and adds
// WAL and busy-timeout pragmas unless the caller supplied parameters.
func prepareSQLite(dsn string) (string, error) {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}
	if strings.Contains(dsn, "?") {
		return dsn, nil
	}
	return dsn + "?_journal_mode=WAL&_busy_timeout=5000", nil
}

// dayExpr returns a SQL expression truncating column to a YYYY-MM-DD UTC
// date string for the active dialect.
func dayExpr(db *gorm.DB, column string) string {
	if Dialect(db) == "postgres" {
		return "to_char(" + column + " AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "date(" + column + ")"
}

// Dialect reports the active backend name ("sqlite" or "postgres").
func Dialect(db *gorm.DB) string {
	return db.Dialector.Name()
}
