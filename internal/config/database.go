package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens the relational store selected by cfg.Driver.
func NewDB(cfg DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "", "postgres":
		return NewPostgresDB(cfg.Postgres)
	case "sqlite":
		return NewSQLiteDB(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// AutoMigrateEnabled reports whether the selected driver asks for schema migration on startup.
func (cfg DatabaseConfig) AutoMigrateEnabled() bool {
	if cfg.Driver == "sqlite" {
		return cfg.SQLite.AutoMigrate
	}
	return cfg.Postgres.AutoMigrate
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// Unique violations surface as gorm.ErrDuplicatedKey regardless of driver.
		TranslateError: true,
		Logger:         newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
	}
}

// newGormLogger reports slow queries and failures. Lookups that find nothing are an
// expected branch of redemption tracking and stay quiet.
func newGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

func NewPostgresDB(cfg PostgresConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DB, cfg.SSLMode,
	)
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// NewSQLiteDB opens a SQLite database. SQLite allows a single writer, so the pool is pinned to one connection
// and transactions queue on it.
func NewSQLiteDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
