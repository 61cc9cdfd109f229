package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrEmptyDSN = errors.New("DATABASE_URL is empty")

// Connect opens the warehouse database. SQL is logged through log: every
// statement at debug level, otherwise only slow queries and errors.
func Connect(dsn string, log *logrus.Entry) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrEmptyDSN
	}

	lg := logger.New(
		log.WithField("component", "gorm"),
		logger.Config{
			SlowThreshold:             100 * time.Millisecond, // log queries > 100ms
			LogLevel:                  gormLogLevel(log.Logger.GetLevel()),
			IgnoreRecordNotFoundError: true,
		},
	)

	// Each ingestion unit opens its own transaction, so single statements
	// don't need one.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 lg,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("Connected to database")
	return db, nil
}

func gormLogLevel(level logrus.Level) logger.LogLevel {
	switch {
	case level >= logrus.DebugLevel:
		return logger.Info
	case level >= logrus.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}
