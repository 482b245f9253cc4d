package auditstore

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"gorm.io/gorm"
)

// Migrations creates the transition audit table.
var Migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_pipeline_transitions",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS pipeline_transitions (
					id          BIGSERIAL PRIMARY KEY,
					run_id      VARCHAR(64) NOT NULL,
					seq         INTEGER NOT NULL,
					occurred_at TIMESTAMPTZ NOT NULL,
					from_state  VARCHAR(32) NOT NULL,
					to_state    VARCHAR(32) NOT NULL,
					action      VARCHAR(32) NOT NULL,
					details     JSONB NOT NULL DEFAULT '{}'::jsonb,
					created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
					UNIQUE (run_id, seq)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_pipeline_transitions_run_id ON pipeline_transitions (run_id)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS pipeline_transitions`,
			},
		},
	},
}

// Migrate applies pending migrations and returns how many ran.
func Migrate(db *gorm.DB) (int, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get db connection during migrate up: %w", err)
	}
	n, err := migrate.Exec(sqlDB, "postgres", Migrations, migrate.Up)
	if err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return n, nil
}
