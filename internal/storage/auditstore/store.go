// Package auditstore persists run transitions to Postgres so event logs
// outlive the process.
package auditstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/logging"
)

// Config holds database settings.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// transitionRecord is one row of pipeline_transitions.
type transitionRecord struct {
	ID         uint64         `gorm:"primaryKey"`
	RunID      string         `gorm:"type:varchar(64);not null;index"`
	Seq        int            `gorm:"not null"`
	OccurredAt time.Time      `gorm:"not null"`
	FromState  string         `gorm:"type:varchar(32);not null"`
	ToState    string         `gorm:"type:varchar(32);not null"`
	Action     string         `gorm:"type:varchar(32);not null"`
	Details    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
}

func (transitionRecord) TableName() string {
	return "pipeline_transitions"
}

// Store writes transitions as rows and rebuilds event logs from them.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and optionally applies migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: newGormLogger(logging.WithComponent("auditstore")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database object: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		n, err := Migrate(db)
		if err != nil {
			return nil, err
		}
		auditLog := logging.WithComponent("auditstore")
		auditLog.Info().Int("applied", n).Msg("Migrations applied")
	}
	return New(db), nil
}

// New wraps an open database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Name identifies the store as a transition sink.
func (s *Store) Name() string {
	return "postgres-audit"
}

// RecordTransition inserts one event row.
func (s *Store) RecordTransition(ctx context.Context, runID string, ev models.TransitionEvent) error {
	rec, err := toRecord(runID, ev)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Events returns the event log of runID in sequence order.
// Numeric details come back as float64, as with any JSON decode.
func (s *Store) Events(ctx context.Context, runID string) (models.EventLog, error) {
	var recs []transitionRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("seq asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	log := make(models.EventLog, 0, len(recs))
	for _, rec := range recs {
		ev, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		log = append(log, ev)
	}
	return log, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database object: %w", err)
	}
	return sqlDB.Close()
}

func toRecord(runID string, ev models.TransitionEvent) (transitionRecord, error) {
	details := ev.Details
	if details == nil {
		details = map[string]any{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return transitionRecord{}, fmt.Errorf("encode details of event %d: %w", ev.Seq, err)
	}
	return transitionRecord{
		RunID:      runID,
		Seq:        ev.Seq,
		OccurredAt: ev.Timestamp.UTC(),
		FromState:  string(ev.From),
		ToState:    string(ev.To),
		Action:     string(ev.Action),
		Details:    datatypes.JSON(data),
	}, nil
}

func fromRecord(rec transitionRecord) (models.TransitionEvent, error) {
	details := map[string]any{}
	if len(rec.Details) > 0 {
		if err := json.Unmarshal(rec.Details, &details); err != nil {
			return models.TransitionEvent{}, fmt.Errorf("decode details of event %d: %w", rec.Seq, err)
		}
	}
	return models.TransitionEvent{
		Seq:       rec.Seq,
		Timestamp: rec.OccurredAt.UTC(),
		From:      models.State(rec.FromState),
		To:        models.State(rec.ToState),
		Action:    models.Action(rec.Action),
		Details:   details,
	}, nil
}

// gormWriter routes gorm's log lines through zerolog.
type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logger.Debug().Msgf(format, args...)
}

func newGormLogger(l zerolog.Logger) logger.Interface {
	return logger.New(gormWriter{logger: l}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
