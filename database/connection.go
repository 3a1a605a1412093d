package database

import (
	"context"
	"fmt"
	"time"

	"github.com/RigelNana/media-service/config"
	"github.com/RigelNana/media-service/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 5

// OpenPostgres opens a gorm handle on dsn with pool limits applied.
func OpenPostgres(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		// postgres keeps microseconds; matching precision lets updated_at act as a version
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// ConnectPostgres opens the database and waits until it answers a ping.
func ConnectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := OpenPostgres(cfg.DSN(), log)
		if err == nil {
			sqlDB, _ := db.DB()
			if err = sqlDB.PingContext(ctx); err == nil {
				log.WithFields(logrus.Fields{"host": cfg.Host, "dbname": cfg.DBName}).Info("connected to postgres")
				return db, nil
			}
			sqlDB.Close()
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("postgres not ready, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", connectAttempts, lastErr)
}

// 自动迁移
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.MediaRecord{})
}
