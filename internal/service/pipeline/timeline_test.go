package pipeline

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"clinical-notes-service/internal/models"
)

func sampleLog(t *testing.T) models.EventLog {
	t.Helper()
	m := NewMachine("run-1", fixedClock())
	steps := []struct {
		action  models.Action
		details map[string]any
	}{
		{models.ActionTranscribe, map[string]any{"segmentCount": 2, "languageCode": "en"}},
		{models.ActionDraft, map[string]any{"draftModelId": "llama3-70b-8192", "noteLength": 412}},
		{models.ActionNormalize, map[string]any{"perCategoryCount": map[string]int{"symptoms": 2}}},
		{models.ActionReview, map[string]any{"action": models.VerdictApprove}},
		{models.ActionFinalize, map[string]any{"finalAction": models.VerdictApprove}},
	}
	for _, s := range steps {
		if _, err := m.Apply(s.action, s.details); err != nil {
			t.Fatalf("%s: %v", s.action, err)
		}
	}
	return m.Events()
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleLog(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv output does not parse: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "seq,timestamp,from,to,action,details" {
		t.Errorf("unexpected header %v", records[0])
	}
	row := records[2]
	if row[0] != "2" || row[2] != "TranscriptionDone" || row[3] != "DraftDone" || row[4] != "draft" {
		t.Errorf("unexpected row %v", row)
	}
	if !strings.Contains(row[5], `"draftModelId":"llama3-70b-8192"`) {
		t.Errorf("expected JSON details, got %s", row[5])
	}
}

func TestTimeline(t *testing.T) {
	out := Timeline(sampleLog(t), 60)

	for _, want := range []string{"Start", "TranscriptionDone", "[finalize]", "    draftModelId: llama3-70b-8192", `perCategoryCount: {"symptoms":2}`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected timeline to contain %q\n%s", want, out)
		}
	}
}

func TestDiagram(t *testing.T) {
	dot := Diagram()

	if !strings.HasPrefix(dot, "digraph pipeline {") {
		t.Errorf("expected digraph header, got %q", dot[:20])
	}
	for _, want := range []string{
		`"Start" -> "TranscriptionDone" [label="transcribe"]`,
		`"ReviewDone" -> "ReviewDone" [label="override"]`,
		`"ReviewDone" -> "Final" [label="finalize"]`,
		`"DraftDone" -> "Final" [label="abort", style=dashed, color=red]`,
		`"Final" -> "Start" [label="regenerate (caller retry, new run)", style=dotted]`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("expected diagram to contain %s", want)
		}
	}
}
