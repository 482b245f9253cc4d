// Package review implements the rule-based quality check applied to draft notes.
package review

import (
	"strings"
	"unicode/utf8"

	"clinical-notes-service/internal/models"
)

// Reason strings recorded in verdicts.
const (
	ReasonTooShort        = "note too short"
	ReasonTooLong         = "note too long"
	ReasonMissingSections = "missing required sections"
	ReasonUncertainty     = "excessive uncertainty language"
	ReasonPassed          = "passed basic checks"
)

// Reviewer judges a draft note.
type Reviewer interface {
	Evaluate(transcript, note string) models.Verdict
}

// Policy holds the thresholds of the review rules.
//
// Rules are evaluated in order and the first match wins:
//
//	1. trimmed length < MinLength          → regenerate
//	2. trimmed length > MaxLength          → regenerate
//	3. a section marker is missing         → regenerate (when RequireSections)
//	4. hedging occurrences >= threshold    → human review
//	5. otherwise                           → approve
type Policy struct {
	MinLength        int      `json:"minLength" yaml:"minLength" validate:"gte=0"`
	MaxLength        int      `json:"maxLength" yaml:"maxLength" validate:"gtfield=MinLength"`
	RequireSections  bool     `json:"requireSections" yaml:"requireSections"`
	SectionMarkers   []string `json:"sectionMarkers" yaml:"sectionMarkers"`
	HedgingPhrases   []string `json:"hedgingPhrases" yaml:"hedgingPhrases"`
	HedgingThreshold int      `json:"hedgingThreshold" yaml:"hedgingThreshold" validate:"gte=1"`
}

// DefaultSectionMarkers are the SOAP headers a note must contain.
var DefaultSectionMarkers = []string{"S:", "O:", "A:", "P:"}

// DefaultHedgingPhrases are phrases that signal an unsure note.
var DefaultHedgingPhrases = []string{"I assume", "maybe", "probably", "might be", "not sure"}

// DefaultPolicy returns the standard review thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        150,
		MaxLength:        4000,
		RequireSections:  true,
		SectionMarkers:   append([]string(nil), DefaultSectionMarkers...),
		HedgingPhrases:   append([]string(nil), DefaultHedgingPhrases...),
		HedgingThreshold: 3,
	}
}

// Evaluate reviews note. The transcript is accepted for interface symmetry
// with model-based reviewers; the rules only read the note.
func (p Policy) Evaluate(_ string, note string) models.Verdict {
	length := utf8.RuneCountInString(strings.TrimSpace(note))
	v := models.Verdict{
		FinalNote: note,
		Reasons:   models.Reasons{Length: length},
	}

	if length < p.MinLength {
		v.Action = models.VerdictRegenerate
		v.Reasons.Reason = ReasonTooShort
		return v
	}
	if length > p.MaxLength {
		v.Action = models.VerdictRegenerate
		v.Reasons.Reason = ReasonTooLong
		return v
	}

	if p.RequireSections {
		found, missing := p.sections(note)
		v.Reasons.SectionsChecked = true
		v.Reasons.SectionsFound = found
		v.Reasons.SectionsMissing = missing
		if len(missing) > 0 {
			v.Action = models.VerdictRegenerate
			v.Reasons.Reason = ReasonMissingSections
			return v
		}
	}

	markers := p.CountHedging(note)
	v.Reasons.UncertaintyMarkers = &markers
	if markers >= p.HedgingThreshold {
		v.Action = models.VerdictHumanReview
		v.Reasons.Reason = ReasonUncertainty
		return v
	}

	v.Action = models.VerdictApprove
	v.Reasons.Reason = ReasonPassed
	return v
}

// CountHedging returns the number of case-insensitive occurrences of every
// hedging phrase in note.
func (p Policy) CountHedging(note string) int {
	lower := strings.ToLower(note)
	count := 0
	for _, phrase := range p.HedgingPhrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		count += strings.Count(lower, phrase)
	}
	return count
}

func (p Policy) sections(note string) (found, missing []string) {
	found = []string{}
	missing = []string{}
	for _, marker := range p.SectionMarkers {
		if strings.Contains(note, marker) {
			found = append(found, marker)
		} else {
			missing = append(missing, marker)
		}
	}
	return found, missing
}
