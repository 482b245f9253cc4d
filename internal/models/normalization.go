package models

// Category is a fixed entity class of the ontology.
type Category string

const (
	CategorySymptoms    Category = "symptoms"
	CategoryMedications Category = "medications"
	CategoryConditions  Category = "conditions"
)

// Categories lists the entity classes in summary order.
var Categories = []Category{CategorySymptoms, CategoryMedications, CategoryConditions}

// Entity is a canonical term found in the text.
type Entity struct {
	Canonical string   `json:"canonical"`
	Matched   string   `json:"matched"`
	Category  Category `json:"category"`
}

// Normalization is the terminology normalizer output.
type Normalization struct {
	Entities map[Category][]Entity `json:"entities"`
	Summary  string                `json:"summary"`
}

// Counts returns the number of entities per category.
func (n Normalization) Counts() map[string]int {
	out := make(map[string]int, len(Categories))
	for _, c := range Categories {
		out[string(c)] = len(n.Entities[c])
	}
	return out
}
