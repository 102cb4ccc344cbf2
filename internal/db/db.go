package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yatube/internal/models"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrMigrationFailed   = errors.New("failed to migrate")
)

// Open connects to the database named by driver ("sqlite" or "postgres") and
// brings the schema up to date. For sqlite, dsn is a file path.
func Open(driver, dsn string) (*gorm.DB, error) {
	var (
		gdb *gorm.DB
		err error
	)
	switch driver {
	case "sqlite", "":
		gdb, err = openSQLite(dsn)
	case "postgres":
		gdb, err = openPostgres(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	if err := migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func openSQLite(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	// foreign keys are off by default in sqlite; cascades depend on them
	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	gdb, err := gorm.Open(&sqlite.Dialector{Conn: sqlDB}, gormConfig())
	if err != nil {
		slog.Error("db: Failed to open sqlite database", "error", err, "path", path)
		sqlDB.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	slog.Debug("db: Opened sqlite database", "path", path)
	return gdb, nil
}

func openPostgres(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		slog.Error("db: Failed to open postgres database", "error", err)
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	slog.Debug("db: Opened postgres database")
	return gdb, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(slogWriter{}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

func migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		slog.Error("db: Failed to migrate database", "error", err)
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	return nil
}

// Close releases the connection pool behind gdb.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogWriter routes gorm's logger output into slog.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	slog.Warn("db: " + fmt.Sprintf(format, args...))
}
