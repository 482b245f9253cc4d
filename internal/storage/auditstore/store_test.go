package auditstore

import (
	"strings"
	"testing"
	"time"

	"clinical-notes-service/internal/models"
)

func TestRecordConversion(t *testing.T) {
	ev := models.TransitionEvent{
		Seq:       3,
		Timestamp: time.Date(2024, 5, 1, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
		From:      models.StateDraftDone,
		To:        models.StateNormalizationDone,
		Action:    models.ActionNormalize,
		Details:   map[string]any{"perCategoryCount": map[string]int{"symptoms": 2}},
	}

	rec, err := toRecord("run-1", ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.RunID != "run-1" || rec.FromState != "DraftDone" || rec.Action != "normalize" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.OccurredAt.Location() != time.UTC {
		t.Error("expected timestamps stored in UTC")
	}

	back, err := fromRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !back.Timestamp.Equal(ev.Timestamp) || back.To != ev.To || back.Seq != 3 {
		t.Errorf("expected %+v, got %+v", ev, back)
	}
	counts, ok := back.Details["perCategoryCount"].(map[string]any)
	if !ok || counts["symptoms"] != float64(2) {
		t.Errorf("expected decoded counts, got %v", back.Details)
	}
}

func TestRecordConversion_NilDetails(t *testing.T) {
	rec, err := toRecord("run-1", models.TransitionEvent{Action: models.ActionAbort})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(rec.Details) != "{}" {
		t.Errorf("expected {}, got %s", rec.Details)
	}
}

func TestMigrations(t *testing.T) {
	if len(Migrations.Migrations) == 0 {
		t.Fatal("expected at least one migration")
	}
	m := Migrations.Migrations[0]
	if !strings.Contains(m.Up[0], "pipeline_transitions") {
		t.Error("expected first migration to create pipeline_transitions")
	}
	if (transitionRecord{}).TableName() != "pipeline_transitions" {
		t.Error("expected model table to match migration")
	}
	if len(m.Down) == 0 {
		t.Error("expected a down migration")
	}
}
