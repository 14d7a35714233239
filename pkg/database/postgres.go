package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"awscqrs/config"
	"awscqrs/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the Postgres pool. The gorm handle serves migrations and the
// contact projection; SQL returns the same pool for the explicit-SQL event log.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.AppMode != logger.ProductionMode {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get generic database object: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.GetGlobalLogger().Infof("database connection established (%s:%s/%s)", cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, nil
}

// SQL returns the *sql.DB behind a gorm handle.
func SQL(db *gorm.DB) (*sql.DB, error) {
	return db.DB()
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// TableExists reports whether table is present in the current schema.
func TableExists(db *gorm.DB, table string) bool {
	return db.Migrator().HasTable(table)
}

func TableCount(db *gorm.DB, table string) (int64, error) {
	var count int64
	err := db.Table(table).Count(&count).Error
	return count, err
}
