package connection

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/vinli0921/GEO-exploration/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	*gorm.DB
	dsn string
}

func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	// Verify connectivity with a plain SQL connection before handing the DSN
	// to GORM, so configuration mistakes surface as readable pq errors.
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql.DB: %w", err)
	}
	defer sqlDB.Close()

	sqlDB.SetConnMaxLifetime(10 * time.Second)
	if err := sqlDB.Ping(); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return nil, fmt.Errorf("postgres error: code=%s, message=%s, detail=%s", pqErr.Code, pqErr.Message, pqErr.Detail)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database with GORM: %w", err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	maxIdleConns := 10
	maxOpenConns := 100
	connMaxLifetime := time.Hour

	if cfg.Database.MaxIdleConns > 0 {
		maxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.MaxOpenConns > 0 {
		maxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		connMaxLifetime = cfg.Database.ConnMaxLifetime
	}

	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetConnMaxLifetime(connMaxLifetime)

	if err := pool.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping connection pool: %w", err)
	}

	return &Database{
		DB:  db,
		dsn: dsn,
	}, nil
}

// Reconnect attempts to reconnect to the database if the connection is lost
func (db *Database) Reconnect() error {
	newDB, err := gorm.Open(postgres.Open(db.dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to reconnect to database: %w", err)
	}

	db.DB = newDB

	pool, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	pool.SetMaxIdleConns(10)
	pool.SetMaxOpenConns(100)
	pool.SetConnMaxLifetime(time.Hour)

	return nil
}
