package store

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the metadata database. A postgres:// DSN selects PostgreSQL,
// anything else is treated as a SQLite file (or ":memory:").
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return db, nil
	}

	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{
		DriverName: "sqlite",
		DSN:        dsn,
	}), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite allows one writer; a single connection also keeps ":memory:" databases shared
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Author{}, &Item{}, &Video{}, &Carousel{}, &Session{})
}
