// Package models defines the data structures shared by the note pipeline.
package models

// Segment is a timed span of recognized speech. Offsets are in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the output of a transcriber.
//
// The average probabilities are nil when no segment reported the metric.
// Zero is a valid probability so it is never used as a placeholder.
type Transcript struct {
	Text                       string    `json:"text"`
	LanguageCode               string    `json:"languageCode,omitempty"`
	Segments                   []Segment `json:"segments"`
	AverageLogProbability      *float64  `json:"averageLogProbability,omitempty"`
	AverageNoSpeechProbability *float64  `json:"averageNoSpeechProbability,omitempty"`
}

// Draft is a note produced by a drafter along with the model that wrote it.
type Draft struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}
