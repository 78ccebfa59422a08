// Package database provides SQLite and PostgreSQL persistence for parties,
// monsters, check-ins and rewards.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/fitnessquest/server/internal/logger"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dateLayout matches checkin.DateLayout.
const dateLayout = "2006-01-02"

// Database wraps the SQL connection and provides persistence operations.
type Database struct {
	db      *sql.DB
	dialect Dialect
	qb      *QueryBuilder
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig opens the database named by cfg and runs migrations.
func OpenWithConfig(cfg Config) (*Database, error) {
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	switch dialect.(type) {
	case *PostgresDialect:
		dsn = cfg.Postgres.DSN()
	default:
		// Ensure directory exists
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch dialect.(type) {
	case *PostgresDialect:
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	default:
		// One connection keeps PRAGMAs in effect and serializes writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init %q: %w", stmt, err)
		}
	}

	d := &Database{db: db, dialect: dialect, qb: NewQueryBuilder(dialect)}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Database opened", "driver", dialect.DriverName())
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB for advanced operations.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Dialect returns the SQL dialect in use.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// migrate creates the database schema if it doesn't exist.
func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS party_members (
			id TEXT PRIMARY KEY,
			party_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			current_hp INTEGER NOT NULL,
			max_hp INTEGER NOT NULL,
			defense INTEGER NOT NULL DEFAULT 0,
			defense_buff INTEGER NOT NULL DEFAULT 0,
			streak INTEGER NOT NULL DEFAULT 0,
			focus INTEGER NOT NULL DEFAULT 0,
			xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			skill_points INTEGER NOT NULL DEFAULT 0,
			last_check_in TEXT NOT NULL DEFAULT '',
			welcome_back_active INTEGER NOT NULL DEFAULT 0,
			welcome_back_remaining INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS goals (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL REFERENCES party_members(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			target DOUBLE PRECISION NOT NULL,
			flex_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS monsters (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			monster_type TEXT NOT NULL,
			max_hp INTEGER NOT NULL,
			current_hp INTEGER NOT NULL,
			armor_class INTEGER NOT NULL,
			damage_min INTEGER NOT NULL,
			damage_max INTEGER NOT NULL,
			counter_chance INTEGER NOT NULL,
			counter_dice TEXT NOT NULL DEFAULT '',
			is_defeated INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS party_monsters (
			party_id TEXT NOT NULL,
			monster_id TEXT NOT NULL REFERENCES monsters(id) ON DELETE CASCADE,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			PRIMARY KEY (party_id, monster_id)
		)`,

		`CREATE TABLE IF NOT EXISTS check_ins (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL REFERENCES party_members(id) ON DELETE CASCADE,
			party_id TEXT NOT NULL,
			check_in_date TEXT NOT NULL,
			goals_met INTEGER NOT NULL,
			action TEXT NOT NULL,
			attack_roll INTEGER NOT NULL,
			total_bonus INTEGER NOT NULL,
			hit INTEGER NOT NULL,
			damage_dealt INTEGER NOT NULL,
			countered INTEGER NOT NULL,
			damage_taken INTEGER NOT NULL,
			focus_delta INTEGER NOT NULL,
			heal_target TEXT NOT NULL DEFAULT '',
			heal_amount INTEGER NOT NULL DEFAULT 0,
			xp_gained INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE (member_id, check_in_date)
		)`,

		`CREATE TABLE IF NOT EXISTS goal_check_ins (
			check_in_id TEXT NOT NULL REFERENCES check_ins(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			goal_id TEXT NOT NULL,
			target DOUBLE PRECISION NOT NULL,
			actual DOUBLE PRECISION NOT NULL,
			flex_percentage DOUBLE PRECISION NOT NULL,
			is_rest_day INTEGER NOT NULL,
			met INTEGER NOT NULL,
			PRIMARY KEY (check_in_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS encouragements (
			from_member_id TEXT NOT NULL REFERENCES party_members(id) ON DELETE CASCADE,
			to_member_id TEXT NOT NULL REFERENCES party_members(id) ON DELETE CASCADE,
			encouragement_date TEXT NOT NULL,
			PRIMARY KEY (from_member_id, to_member_id, encouragement_date)
		)`,

		`CREATE TABLE IF NOT EXISTS victory_rewards (
			id TEXT PRIMARY KEY,
			party_id TEXT NOT NULL,
			monster_id TEXT NOT NULL,
			monster_name TEXT NOT NULL,
			monster_type TEXT NOT NULL,
			days_to_defeat INTEGER NOT NULL,
			total_damage INTEGER NOT NULL,
			total_heals INTEGER NOT NULL,
			mvp_consistent TEXT NOT NULL DEFAULT '',
			mvp_consistent_stat INTEGER NOT NULL DEFAULT 0,
			mvp_supportive TEXT NOT NULL DEFAULT '',
			mvp_supportive_stat INTEGER NOT NULL DEFAULT 0,
			mvp_damage TEXT NOT NULL DEFAULT '',
			mvp_damage_stat INTEGER NOT NULL DEFAULT 0,
			xp_awarded INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (party_id, monster_id)
		)`,

		`CREATE TABLE IF NOT EXISTS badges (
			user_id TEXT NOT NULL,
			badge_type TEXT NOT NULL,
			awarded_at TEXT NOT NULL,
			PRIMARY KEY (user_id, badge_type)
		)`,

		// Indexes for common queries
		`CREATE INDEX IF NOT EXISTS idx_party_members_party_id ON party_members(party_id)`,
		`CREATE INDEX IF NOT EXISTS idx_party_members_user_id ON party_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_member_id ON goals(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_check_ins_party_date ON check_ins(party_id, check_in_date)`,
		`CREATE INDEX IF NOT EXISTS idx_encouragements_to ON encouragements(to_member_id, encouragement_date)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// WithTx runs fn inside a SQL transaction, committing only when fn succeeds.
func (d *Database) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&Tx{tx: sqlTx, db: d}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
