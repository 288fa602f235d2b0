package db

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"flashgen/internal/config"
	"flashgen/internal/models"
)

// Open connects to the configured database and runs schema migrations.
func Open(cfg config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.IsDev() && cfg.LogLevel == "debug" {
		level = logger.Info
	}

	switch cfg.DatabaseDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		return OpenPostgres(cfg.DatabaseURL, level)
	case "sqlite", "":
		return OpenSQLite(cfg.DatabasePath, level)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// OpenPostgres connects to a hosted Postgres instance such as Supabase.
func OpenPostgres(url string, level logger.LogLevel) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(url), gormConfig(level))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return gdb, nil
}

// OpenSQLite opens a pure-Go SQLite database. Pass ":memory:" for a private
// in-memory database.
func OpenSQLite(path string, level logger.LogLevel) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_time_format=sqlite", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows a single writer; an in-memory database also lives on one connection.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	gdb, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", Conn: conn}, gormConfig(level))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrate(gdb); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return gdb, nil
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("resolve sql db: %w", err)
	}
	return sqlDB.Close()
}

func gormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.GenerationRequest{},
		&models.AICandidate{},
		&models.Flashcard{},
		&models.ReviewLog{},
	)
}
