package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"messageflow-backend/internal/model"
)

const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// migrate is replaced in tests.
var migrate = Migrate

type Options struct {
	Engine     string
	SQLitePath string
	DSN        string
}

// Open connects to the configured engine and migrates every table the
// service owns.
func Open(opts Options) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(opts.Engine) {
	case "", EngineSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite database path is required")
		}
		if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		db, err = gorm.Open(sqlite.Open(opts.SQLitePath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), gormCfg)
	case EnginePostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		db, err = gorm.Open(postgres.Open(opts.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database engine %q", opts.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := migrate(db); err != nil {
		if closeErr := Close(db); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close database after migration error")
		}
		return nil, err
	}

	log.Info().Str("engine", opts.Engine).Msg("Database ready")
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.License{},
		&model.DeadLetter{},
		&model.OperationLog{},
		&model.LicenseUsage{},
		&model.LoginLog{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
