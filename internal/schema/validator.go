// Package schema validates API payloads and publishes JSON Schemas of the
// service's output documents.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"clinical-notes-service/internal/models"
)

// Validator checks payloads against their struct tags.
type Validator struct {
	v *validator.Validate
}

// New creates a validator.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Validate returns an error describing every failed field of payload.
func (v *Validator) Validate(payload any) error {
	if err := v.v.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInput, err)
	}
	return nil
}

var documents = map[string]any{
	"event":   models.TransitionEvent{},
	"result":  models.PipelineResult{},
	"verdict": models.Verdict{},
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[string][]byte{}
)

// Names lists the documents a schema is available for.
func Names() []string {
	out := make([]string, 0, len(documents))
	for name := range documents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Schema returns the JSON Schema of the named document.
func Schema(name string) ([]byte, error) {
	doc, ok := documents[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown schema %q", models.ErrInput, name)
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()
	if b, ok := schemaCache[name]; ok {
		return b, nil
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	s := reflector.ReflectFromType(reflect.TypeOf(doc))
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	schemaCache[name] = b
	return b, nil
}
