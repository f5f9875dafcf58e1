// Package db provides PostgreSQL access for the cs2kz API: connection pool
// management, schema migrations, and the per-entity query files alongside
// this one.
//
// Dependencies:
// - PostgreSQL 12+
// - lib/pq driver for database/sql
package db

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database connection configuration.
type Config struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Database wraps the pooled connection used throughout the API.
type Database struct {
	db *sql.DB
}

// validateConfig rejects connection parameters that could otherwise be used
// to smuggle extra options into the DSN string.
func validateConfig(config Config) error {
	if config.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if net.ParseIP(config.Host) == nil {
		hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
		if !hostnameRegex.MatchString(config.Host) {
			return fmt.Errorf("invalid database host: %s", config.Host)
		}
	}

	if config.Port == "" {
		return fmt.Errorf("database port cannot be empty")
	}
	port, err := strconv.Atoi(config.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid database port: %s (must be 1-65535)", config.Port)
	}

	if config.User == "" {
		return fmt.Errorf("database user cannot be empty")
	}
	userRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !userRegex.MatchString(config.User) {
		return fmt.Errorf("invalid database user: %s", config.User)
	}

	if config.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	dbNameRegex := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	if !dbNameRegex.MatchString(config.DBName) {
		return fmt.Errorf("invalid database name: %s", config.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if config.SSLMode != "" {
		valid := false
		for _, mode := range validSSLModes {
			if config.SSLMode == mode {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid SSL mode: %s (must be one of: %s)", config.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}

	return nil
}

// NewDatabase opens a pooled connection and verifies it is reachable.
func NewDatabase(config Config) (*Database, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := config.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	connMaxLife := config.ConnMaxLifetime
	if connMaxLife == 0 {
		connMaxLife = 5 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMaxLife)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: sqlDB}, nil
}

// NewDatabaseForTesting wraps an existing *sql.DB, for use with sqlmock in
// unit tests. Do not use in production code.
func NewDatabaseForTesting(sqlDB *sql.DB) *Database {
	return &Database{db: sqlDB}
}

// Close closes the pooled connection.
func (d *Database) Close() error { return d.db.Close() }

// DB returns the underlying *sql.DB for callers that need direct access
// (transactions, prepared statements).
func (d *Database) DB() *sql.DB { return d.db }

// Migrate creates every table the core subsystems need if it does not
// already exist. Entity tables outside the core (Players, Servers, Maps,
// Courses, PluginVersions, Bans, Unbans) are included since RecordIngest and
// SessionAuth join against them.
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			permissions BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS servers (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			host VARCHAR(255) NOT NULL,
			port INT NOT NULL,
			owner_id BIGINT NOT NULL REFERENCES players(id),
			approved_at TIMESTAMP,
			UNIQUE(host, port)
		)`,

		`CREATE TABLE IF NOT EXISTS maps (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			checksum VARCHAR(64) NOT NULL,
			mapper_id BIGINT REFERENCES players(id)
		)`,

		`CREATE TABLE IF NOT EXISTS courses (
			id BIGSERIAL PRIMARY KEY,
			map_id BIGINT NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
			course_index INT NOT NULL,
			name VARCHAR(255) NOT NULL,
			UNIQUE(map_id, course_index)
		)`,

		`CREATE TABLE IF NOT EXISTS course_filters (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			mode SMALLINT NOT NULL,
			with_teleports_tier SMALLINT NOT NULL,
			without_teleports_tier SMALLINT NOT NULL,
			state SMALLINT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			UNIQUE(course_id, mode)
		)`,

		`CREATE TABLE IF NOT EXISTS plugin_versions (
			id BIGSERIAL PRIMARY KEY,
			semver VARCHAR(32) UNIQUE NOT NULL,
			is_outdated BOOLEAN NOT NULL DEFAULT false,
			published_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bans (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL REFERENCES players(id),
			admin_id BIGINT NOT NULL REFERENCES players(id),
			reason TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS unbans (
			id BIGSERIAL PRIMARY KEY,
			ban_id BIGINT NOT NULL REFERENCES bans(id),
			admin_id BIGINT NOT NULL REFERENCES players(id),
			reason TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS records (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL REFERENCES players(id),
			server_id BIGINT NOT NULL REFERENCES servers(id),
			filter_id BIGINT NOT NULL REFERENCES course_filters(id),
			styles BIGINT NOT NULL DEFAULT 0,
			teleports INT NOT NULL DEFAULT 0,
			time DOUBLE PRECISION NOT NULL,
			plugin_version_id BIGINT NOT NULL REFERENCES plugin_versions(id),
			submitted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_filter_leaderboard ON records(filter_id, time ASC, submitted_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_records_player_filter ON records(player_id, filter_id)`,

		`CREATE TABLE IF NOT EXISTS best_nub_records (
			filter_id BIGINT NOT NULL REFERENCES course_filters(id),
			player_id BIGINT NOT NULL REFERENCES players(id),
			record_id BIGINT NOT NULL REFERENCES records(id),
			points DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (filter_id, player_id)
		)`,

		`CREATE TABLE IF NOT EXISTS best_pro_records (
			filter_id BIGINT NOT NULL REFERENCES course_filters(id),
			player_id BIGINT NOT NULL REFERENCES players(id),
			record_id BIGINT NOT NULL REFERENCES records(id),
			points DOUBLE PRECISION NOT NULL,
			based_on_pro_leaderboard BOOLEAN NOT NULL DEFAULT true,
			PRIMARY KEY (filter_id, player_id)
		)`,

		`CREATE TABLE IF NOT EXISTS point_distribution_data (
			filter_id BIGINT NOT NULL REFERENCES course_filters(id),
			is_pro BOOLEAN NOT NULL,
			a DOUBLE PRECISION NOT NULL,
			b DOUBLE PRECISION NOT NULL,
			loc DOUBLE PRECISION NOT NULL,
			scale DOUBLE PRECISION NOT NULL,
			top_scale DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (filter_id, is_pro)
		)`,

		`CREATE TABLE IF NOT EXISTS record_counts (
			filter_id BIGINT PRIMARY KEY REFERENCES course_filters(id),
			count BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS filters_to_recalculate (
			filter_id BIGINT PRIMARY KEY REFERENCES course_filters(id),
			priority BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS login_sessions (
			id VARCHAR(64) PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES players(id),
			granted_permissions BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_sessions_user ON login_sessions(user_id)`,

		`CREATE TABLE IF NOT EXISTS access_keys (
			id BIGSERIAL PRIMARY KEY,
			server_id BIGINT NOT NULL REFERENCES servers(id),
			secret_hash VARCHAR(255) NOT NULL,
			expires_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_keys_server ON access_keys(server_id)`,

		`CREATE TABLE IF NOT EXISTS player_preferences (
			player_id BIGINT PRIMARY KEY REFERENCES players(id),
			preferences JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nstatement: %s", err, migration)
		}
	}

	return nil
}
