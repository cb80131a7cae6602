package extraction

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed event_fields.schema.json
var eventFieldsSchemaJSON string

// EventFields is the structured output of the model for one event segment.
// date_text carries the raw scheduling phrase; it is resolved into a typed
// schedule by the schedule package, never by the model.
type EventFields struct {
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	DateText      string       `json:"date_text,omitempty"`
	Location      string       `json:"location,omitempty"`
	Address       string       `json:"address,omitempty"`
	Price         *PriceFields `json:"price,omitempty"`
	Categories    []string     `json:"categories,omitempty"`
	UserInterests []string     `json:"user_interests,omitempty"`
}

// PriceFields mirrors the price object of the model output.
type PriceFields struct {
	Amount     *int   `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	IsFree     bool   `json:"is_free,omitempty"`
	PriceRange string `json:"price_range,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateEventFields checks a raw model response against the embedded
// schema and decodes it. Every failure is a ValidationError: the caller
// drops the segment and moves on.
func ValidateEventFields(payload json.RawMessage) (*EventFields, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, &ValidationError{Reason: "model output is not a JSON object", Err: err}
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, &ValidationError{Reason: "schema validation failed", Err: err}
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, &ValidationError{Reason: "normalize payload", Err: err}
	}

	var fields EventFields
	if err := json.Unmarshal(normalized, &fields); err != nil {
		return nil, &ValidationError{Reason: "unmarshal payload", Err: err}
	}

	if strings.TrimSpace(fields.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	return &fields, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("event_fields.schema.json", strings.NewReader(eventFieldsSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("event_fields.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}
