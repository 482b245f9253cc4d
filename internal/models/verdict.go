package models

// VerdictAction is the categorical outcome of a review.
type VerdictAction string

const (
	VerdictApprove     VerdictAction = "approve"
	VerdictRegenerate  VerdictAction = "regenerate"
	VerdictHumanReview VerdictAction = "human_review"
)

// Reasons carries every signal the review evaluated.
type Reasons struct {
	Length             int      `json:"length"`
	Reason             string   `json:"reason"`
	SectionsChecked    bool     `json:"sectionsChecked"`
	SectionsFound      []string `json:"sectionsFound,omitempty"`
	SectionsMissing    []string `json:"sectionsMissing,omitempty"`
	UncertaintyMarkers *int     `json:"uncertaintyMarkers,omitempty"`
	ManualOverride     bool     `json:"manualOverride"`
	OverrideReason     string   `json:"overrideReason,omitempty"`
	RetryCount         int      `json:"retryCount"`
}

// Clone returns a deep copy.
func (r Reasons) Clone() Reasons {
	out := r
	if r.SectionsFound != nil {
		out.SectionsFound = append([]string(nil), r.SectionsFound...)
	}
	if r.SectionsMissing != nil {
		out.SectionsMissing = append([]string(nil), r.SectionsMissing...)
	}
	if r.UncertaintyMarkers != nil {
		n := *r.UncertaintyMarkers
		out.UncertaintyMarkers = &n
	}
	return out
}

// Verdict is the result of reviewing a draft note.
type Verdict struct {
	Action    VerdictAction `json:"action"`
	Reasons   Reasons       `json:"reasons"`
	FinalNote string        `json:"finalNote"`
}

// WithOverride returns a copy escalated to human review. The receiver is not modified.
func (v Verdict) WithOverride(reason string) Verdict {
	out := Verdict{
		Action:    VerdictHumanReview,
		Reasons:   v.Reasons.Clone(),
		FinalNote: v.FinalNote,
	}
	out.Reasons.ManualOverride = true
	out.Reasons.OverrideReason = reason
	return out
}

// WithRetryCount returns a copy carrying the number of earlier attempts.
func (v Verdict) WithRetryCount(n int) Verdict {
	out := Verdict{
		Action:    v.Action,
		Reasons:   v.Reasons.Clone(),
		FinalNote: v.FinalNote,
	}
	out.Reasons.RetryCount = n
	return out
}
