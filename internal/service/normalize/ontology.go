package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"clinical-notes-service/internal/models"
)

//go:embed ontology.yaml
var defaultOntology []byte

// Term is a canonical term and the surface forms that map to it.
type Term struct {
	Canonical string
	Synonyms  []string
}

// Ontology maps each category to its terms, sorted by canonical name.
type Ontology map[models.Category][]Term

// DefaultOntology returns the built-in ontology.
func DefaultOntology() Ontology {
	o, err := ParseOntology(defaultOntology)
	if err != nil {
		panic(fmt.Sprintf("embedded ontology: %v", err))
	}
	return o
}

// LoadOntology reads a YAML ontology file.
func LoadOntology(path string) (Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology %s: %w", path, err)
	}
	return ParseOntology(data)
}

// ParseOntology decodes YAML of the form category -> canonical -> [synonyms].
// Categories outside the fixed set are rejected.
func ParseOntology(data []byte) (Ontology, error) {
	var raw map[string]map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ontology: %w", err)
	}

	known := make(map[models.Category]bool, len(models.Categories))
	for _, c := range models.Categories {
		known[c] = true
	}

	o := make(Ontology, len(raw))
	for name, entries := range raw {
		cat := models.Category(strings.ToLower(name))
		if !known[cat] {
			return nil, fmt.Errorf("unknown ontology category %q", name)
		}
		terms := make([]Term, 0, len(entries))
		for canonical, synonyms := range entries {
			terms = append(terms, Term{Canonical: canonical, Synonyms: synonyms})
		}
		sort.Slice(terms, func(i, j int) bool { return terms[i].Canonical < terms[j].Canonical })
		o[cat] = terms
	}
	return o, nil
}
