// Package apispec embeds the HTTP API's OpenAPI document and validates
// request bodies against its schemas.
package apispec

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var documentYAML []byte

const templateInputSchema = "TemplateInput"

var ErrInvalidJSON = errors.New("request body is not valid JSON")

// ValidationError describes the first schema violation in a request body.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// TemplateInput is a validated create/update body.
type TemplateInput struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Content  json.RawMessage `json:"content"`
}

// Document is a loaded and validated OpenAPI document.
type Document struct {
	doc  *openapi3.T
	json []byte
}

// YAML returns the embedded document source.
func YAML() []byte {
	return append([]byte(nil), documentYAML...)
}

func Load(ctx context.Context) (*Document, error) {
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(documentYAML)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validate: %w", err)
	}
	if _, ok := doc.Components.Schemas[templateInputSchema]; !ok {
		return nil, fmt.Errorf("openapi: schema %s missing", templateInputSchema)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi: encode json: %w", err)
	}
	return &Document{doc: doc, json: raw}, nil
}

// JSON returns the document rendered as JSON, as served at /openapi.json.
func (d *Document) JSON() []byte {
	return d.json
}

// HasOperation reports whether the document declares method on path.
func (d *Document) HasOperation(method, path string) bool {
	item := d.doc.Paths.Find(path)
	if item == nil {
		return false
	}
	return item.GetOperation(strings.ToUpper(method)) != nil
}

// DecodeTemplateInput parses and validates a template create/update body.
// Unknown properties are ignored.
func (d *Document) DecodeTemplateInput(body []byte) (TemplateInput, error) {
	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return TemplateInput{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := d.validate(templateInputSchema, generic); err != nil {
		return TemplateInput{}, err
	}
	var in TemplateInput
	if err := json.Unmarshal(body, &in); err != nil {
		return TemplateInput{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return in, nil
}

func (d *Document) validate(schemaName string, value any) error {
	ref := d.doc.Components.Schemas[schemaName]
	err := ref.Value.VisitJSON(value, openapi3.VisitAsRequest())
	if err == nil {
		return nil
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		return &ValidationError{
			Field:  strings.Join(schemaErr.JSONPointer(), "."),
			Reason: schemaErr.Reason,
		}
	}
	return &ValidationError{Reason: err.Error()}
}
