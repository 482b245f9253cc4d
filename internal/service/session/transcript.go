package session

import (
	"strings"

	"clinical-notes-service/internal/models"
)

// running is an append-only transcript built from chunk transcripts.
type running struct {
	text     string
	language string
	segments []models.Segment
}

// add appends the non-empty text of tr, shifting its segments by offset
// seconds. It reports whether anything was appended.
func (r *running) add(offset float64, tr models.Transcript) bool {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return false
	}
	if r.text == "" {
		r.text = text
	} else {
		r.text = r.text + " " + text
	}
	if tr.LanguageCode != "" {
		r.language = tr.LanguageCode
	}
	for _, seg := range tr.Segments {
		r.segments = append(r.segments, models.Segment{
			Start: seg.Start + offset,
			End:   seg.End + offset,
			Text:  seg.Text,
		})
	}
	return true
}

func (r *running) transcript() models.Transcript {
	segs := make([]models.Segment, len(r.segments))
	copy(segs, r.segments)
	return models.Transcript{
		Text:         r.text,
		LanguageCode: r.language,
		Segments:     segs,
	}
}
