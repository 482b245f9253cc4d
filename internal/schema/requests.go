package schema

// CreateSessionRequest opens a live session. Zero chunk seconds uses the default.
type CreateSessionRequest struct {
	ChunkSeconds float64 `json:"chunkSeconds" validate:"gte=0"`
}

// ChunkDurationRequest changes a session's chunk duration.
type ChunkDurationRequest struct {
	Seconds float64 `json:"seconds" validate:"gt=0"`
}

// FinalizeRequest drafts a note from a session's transcript.
type FinalizeRequest struct {
	ForceHumanReview bool   `json:"forceHumanReview"`
	MaxAttempts      int    `json:"maxAttempts" validate:"gte=0,lte=10"`
	Language         string `json:"language" validate:"omitempty,max=16"`
	Drain            bool   `json:"drain"`
}

// RunRequest holds the query parameters of a batch run.
type RunRequest struct {
	ForceHumanReview bool
	MaxAttempts      int     `validate:"gte=0,lte=10"`
	Language         string  `validate:"omitempty,max=16"`
	ChunkSeconds     float64 `validate:"gte=0"`
}
