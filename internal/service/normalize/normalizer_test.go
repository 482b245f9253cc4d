package normalize

import (
	"context"
	"testing"

	"clinical-notes-service/internal/models"
)

func TestNormalize_EmptyInputs(t *testing.T) {
	m := NewMatcher(DefaultOntology())

	n := m.Normalize(context.Background(), "", "")

	for _, cat := range models.Categories {
		if len(n.Entities[cat]) != 0 {
			t.Errorf("expected no %s, got %v", cat, n.Entities[cat])
		}
	}
	expected := "Normalized entities → symptoms: none; medications: none; conditions: none."
	if n.Summary != expected {
		t.Errorf("expected %q, got %q", expected, n.Summary)
	}
}

func TestNormalize_MatchesTranscriptAndNote(t *testing.T) {
	m := NewMatcher(DefaultOntology())

	n := m.Normalize(context.Background(),
		"I have been Coughing and feel tired. I took some Tylenol.",
		"A: Viral illness. P: continue acetaminophen.")

	symptoms := n.Entities[models.CategorySymptoms]
	if len(symptoms) != 2 {
		t.Fatalf("expected 2 symptoms, got %v", symptoms)
	}
	if symptoms[0].Canonical != "cough" || symptoms[0].Matched != "cough" {
		t.Errorf("expected cough matched by 'cough', got %+v", symptoms[0])
	}
	if symptoms[1].Canonical != "fatigue" || symptoms[1].Matched != "tired" {
		t.Errorf("expected fatigue matched by 'tired', got %+v", symptoms[1])
	}

	meds := n.Entities[models.CategoryMedications]
	if len(meds) != 1 || meds[0].Canonical != "paracetamol" {
		t.Fatalf("expected one paracetamol entity, got %v", meds)
	}
	if meds[0].Matched != "acetaminophen" {
		t.Errorf("expected first listed synonym to win, got %q", meds[0].Matched)
	}

	expected := "Normalized entities → symptoms: cough, fatigue; medications: paracetamol; conditions: upper respiratory infection."
	if n.Summary != expected {
		t.Errorf("expected %q, got %q", expected, n.Summary)
	}
}

func TestParseOntology(t *testing.T) {
	data := []byte(`
symptoms:
  wheeze: [wheeze, wheezing]
  cough: [cough]
`)
	o, err := ParseOntology(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	terms := o[models.CategorySymptoms]
	if len(terms) != 2 {
		t.Fatalf("expected 2 terms, got %d", len(terms))
	}
	if terms[0].Canonical != "cough" {
		t.Errorf("expected sorted canonicals, got %s first", terms[0].Canonical)
	}
}

func TestParseOntology_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown category", "allergies:\n  pollen: [pollen]\n"},
		{"bad yaml", "symptoms: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseOntology([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSummarize_Deduplicates(t *testing.T) {
	entities := map[models.Category][]models.Entity{
		models.CategoryConditions: {
			{Canonical: "hypertension", Category: models.CategoryConditions},
			{Canonical: "asthma", Category: models.CategoryConditions},
			{Canonical: "hypertension", Category: models.CategoryConditions},
		},
	}
	expected := "Normalized entities → symptoms: none; medications: none; conditions: asthma, hypertension."
	if got := Summarize(entities); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
