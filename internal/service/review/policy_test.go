package review

import (
	"strings"
	"testing"

	"clinical-notes-service/internal/models"
)

func soapNote(extra string) string {
	return "S: Patient reports a dry cough for three days with mild fatigue.\n" +
		"O: Temperature 37.8, lungs clear on auscultation, normal vitals otherwise.\n" +
		"A: Likely viral upper respiratory infection.\n" +
		"P: Rest, fluids, paracetamol as needed, return if worse." + extra
}

func TestEvaluate_ShortExample(t *testing.T) {
	note := "S: cough\nO: normal vitals\nA: viral illness\nP: rest"

	v := DefaultPolicy().Evaluate("", note)

	if v.Action != models.VerdictRegenerate {
		t.Errorf("expected regenerate, got %s", v.Action)
	}
	if v.Reasons.Reason != ReasonTooShort {
		t.Errorf("expected %q, got %q", ReasonTooShort, v.Reasons.Reason)
	}
	if v.Reasons.Length != 50 {
		t.Errorf("expected length 50, got %d", v.Reasons.Length)
	}
	if v.Reasons.UncertaintyMarkers != nil {
		t.Error("expected no marker count when the length rule fires")
	}
}

func TestEvaluate_TooLong(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name string
		note string
	}{
		{"filler", strings.Repeat("a", p.MaxLength+1)},
		{"structured", soapNote(strings.Repeat(" maybe", 800))},
		{"hedged", strings.Repeat("not sure ", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Evaluate("", tt.note)
			if v.Action != models.VerdictRegenerate {
				t.Errorf("expected regenerate, got %s", v.Action)
			}
			if v.Reasons.Reason != ReasonTooLong {
				t.Errorf("expected %q, got %q", ReasonTooLong, v.Reasons.Reason)
			}
		})
	}
}

func TestEvaluate_LengthIsTrimmedRunes(t *testing.T) {
	p := Policy{MinLength: 3, MaxLength: 10, HedgingThreshold: 3}

	v := p.Evaluate("", "   äöü   ")
	if v.Reasons.Length != 3 {
		t.Errorf("expected length 3, got %d", v.Reasons.Length)
	}
	if v.Action != models.VerdictApprove {
		t.Errorf("expected approve, got %s", v.Action)
	}
}

func TestEvaluate_MissingSections(t *testing.T) {
	note := strings.Replace(soapNote(""), "O:", "Objective -", 1)

	v := DefaultPolicy().Evaluate("", note)

	if v.Action != models.VerdictRegenerate {
		t.Errorf("expected regenerate, got %s", v.Action)
	}
	if v.Reasons.Reason != ReasonMissingSections {
		t.Errorf("expected %q, got %q", ReasonMissingSections, v.Reasons.Reason)
	}
	if len(v.Reasons.SectionsMissing) != 1 || v.Reasons.SectionsMissing[0] != "O:" {
		t.Errorf("expected missing [O:], got %v", v.Reasons.SectionsMissing)
	}
	if len(v.Reasons.SectionsFound) != 3 {
		t.Errorf("expected 3 sections found, got %v", v.Reasons.SectionsFound)
	}
}

func TestEvaluate_SectionsDisabled(t *testing.T) {
	p := DefaultPolicy()
	p.RequireSections = false
	note := strings.Repeat("Patient feels well and has no complaints today. ", 5)

	v := p.Evaluate("", note)

	if v.Action != models.VerdictApprove {
		t.Errorf("expected approve, got %s", v.Action)
	}
	if v.Reasons.SectionsChecked {
		t.Error("expected sections not to be checked")
	}
}

func TestEvaluate_Approve(t *testing.T) {
	v := DefaultPolicy().Evaluate("transcript", soapNote(" Maybe recheck next week."))

	if v.Action != models.VerdictApprove {
		t.Errorf("expected approve, got %s", v.Action)
	}
	if v.Reasons.Reason != ReasonPassed {
		t.Errorf("expected %q, got %q", ReasonPassed, v.Reasons.Reason)
	}
	if v.Reasons.UncertaintyMarkers == nil || *v.Reasons.UncertaintyMarkers != 1 {
		t.Errorf("expected marker count 1, got %v", v.Reasons.UncertaintyMarkers)
	}
	if v.FinalNote != soapNote(" Maybe recheck next week.") {
		t.Error("expected note to be carried forward unchanged")
	}
}

func TestEvaluate_HumanReview(t *testing.T) {
	tests := []struct {
		name     string
		extra    string
		expected int
	}{
		{"distinct phrases", " I assume it is viral, probably benign, not sure.", 3},
		{"repeated phrase", " Maybe. maybe. MAYBE.", 3},
		{"many", " might be, might be, probably, probably.", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DefaultPolicy().Evaluate("", soapNote(tt.extra))
			if v.Action != models.VerdictHumanReview {
				t.Errorf("expected human_review, got %s", v.Action)
			}
			if v.Reasons.Reason != ReasonUncertainty {
				t.Errorf("expected %q, got %q", ReasonUncertainty, v.Reasons.Reason)
			}
			if v.Reasons.UncertaintyMarkers == nil || *v.Reasons.UncertaintyMarkers != tt.expected {
				t.Errorf("expected %d markers, got %v", tt.expected, v.Reasons.UncertaintyMarkers)
			}
		})
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	p := DefaultPolicy()
	note := soapNote(" probably fine")

	a := p.Evaluate("t", note)
	b := p.Evaluate("t", note)

	if a.Action != b.Action || a.Reasons.Reason != b.Reasons.Reason || a.Reasons.Length != b.Reasons.Length {
		t.Errorf("expected identical verdicts, got %+v and %+v", a, b)
	}
	if *a.Reasons.UncertaintyMarkers != *b.Reasons.UncertaintyMarkers {
		t.Error("expected identical marker counts")
	}
}

func TestEvaluate_CustomPhrases(t *testing.T) {
	p := DefaultPolicy()
	p.HedgingPhrases = []string{"unclear"}
	p.HedgingThreshold = 1

	v := p.Evaluate("", soapNote(" Etiology unclear."))
	if v.Action != models.VerdictHumanReview {
		t.Errorf("expected human_review, got %s", v.Action)
	}
}
