// Package normalize maps free text onto canonical clinical terms.
package normalize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"clinical-notes-service/internal/models"
)

// Normalizer extracts canonical entities from a transcript and its note.
type Normalizer interface {
	Normalize(ctx context.Context, transcript, note string) models.Normalization
}

// Matcher is a substring matcher over an ontology. It never fails.
type Matcher struct {
	ontology Ontology
}

// NewMatcher creates a matcher over o.
func NewMatcher(o Ontology) *Matcher {
	return &Matcher{ontology: o}
}

// Normalize lowercases the combined text and records, per canonical term,
// the first synonym found in it.
func (m *Matcher) Normalize(_ context.Context, transcript, note string) models.Normalization {
	combined := strings.ToLower(transcript + "\n\n" + note)

	entities := make(map[models.Category][]models.Entity, len(models.Categories))
	for _, cat := range models.Categories {
		found := []models.Entity{}
		for _, term := range m.ontology[cat] {
			for _, syn := range term.Synonyms {
				if syn == "" || !strings.Contains(combined, strings.ToLower(syn)) {
					continue
				}
				found = append(found, models.Entity{
					Canonical: term.Canonical,
					Matched:   syn,
					Category:  cat,
				})
				break
			}
		}
		entities[cat] = found
	}

	return models.Normalization{
		Entities: entities,
		Summary:  Summarize(entities),
	}
}

// Summarize lists the distinct canonical terms per category.
func Summarize(entities map[models.Category][]models.Entity) string {
	parts := make([]string, 0, len(models.Categories))
	for _, cat := range models.Categories {
		seen := map[string]bool{}
		var names []string
		for _, e := range entities[cat] {
			if !seen[e.Canonical] {
				seen[e.Canonical] = true
				names = append(names, e.Canonical)
			}
		}
		sort.Strings(names)
		list := "none"
		if len(names) > 0 {
			list = strings.Join(names, ", ")
		}
		parts = append(parts, fmt.Sprintf("%s: %s", cat, list))
	}
	return "Normalized entities → " + strings.Join(parts, "; ") + "."
}
