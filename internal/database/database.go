package database

import (
	"fmt"
	"time"

	"github.com/otcheredev/cabinet-bootstrap/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance (caller-rights role)
var DB *gorm.DB

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Open opens a connection pool without touching the global instance
func Open(cfg Config) (*gorm.DB, error) {
	// Configure GORM logger
	var gormLogger logger.Interface
	switch cfg.LogLevel {
	case "silent":
		gormLogger = logger.Default.LogMode(logger.Silent)
	case "error":
		gormLogger = logger.Default.LogMode(logger.Error)
	case "warn":
		gormLogger = logger.Default.LogMode(logger.Warn)
	default:
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL DB for connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}

	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if maxOpen == 0 {
		maxOpen = 25
	}
	if maxIdle == 0 {
		maxIdle = 5
	}
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	return db, nil
}

// Connect establishes the global database connection
func Connect(cfg Config) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Database connected")
	return nil
}

// statements that AutoMigrate cannot express
var migrationSQL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS team_members_cabinet_contact_key
		ON team_members (cabinet_id, lower(contact))`,
	`CREATE INDEX IF NOT EXISTS team_members_contact_lower_idx
		ON team_members (lower(contact))`,
	`CREATE OR REPLACE FUNCTION create_cabinet_for_owner(p_owner uuid, p_name text, p_city text)
	RETURNS uuid
	LANGUAGE plpgsql
	SECURITY DEFINER
	AS $$
	DECLARE
		v_id uuid;
	BEGIN
		SELECT id INTO v_id FROM cabinets WHERE owner_id = p_owner;
		IF v_id IS NOT NULL THEN
			RETURN v_id;
		END IF;

		INSERT INTO cabinets (id, name, city, owner_id, status, created_at, updated_at)
		VALUES (gen_random_uuid(), p_name, NULLIF(p_city, ''), p_owner, 'active', now(), now())
		ON CONFLICT (owner_id) DO NOTHING
		RETURNING id INTO v_id;

		IF v_id IS NULL THEN
			SELECT id INTO v_id FROM cabinets WHERE owner_id = p_owner;
		END IF;
		RETURN v_id;
	END;
	$$`,
}

// Migrate runs automatic migrations for all models plus raw SQL objects
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Profile{},
		&models.Cabinet{},
		&models.TeamMember{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	for _, stmt := range migrationSQL {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to run migration statement: %w", err)
		}
	}

	log.Info().Msg("Database migrated successfully")
	return nil
}

// Close closes a database connection
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
