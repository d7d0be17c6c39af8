// Package schema wraps JSON-schema compilation and validation for
// structured LLM outputs. A caller-supplied schema document is compiled once
// per call and used to validate each returned candidate.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema pairs the raw schema document (sent to providers and serialized
// into the event prompt) with its compiled validator.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// Compile parses and compiles a JSON-schema document.
func Compile(raw json.RawMessage) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", doc); err != nil {
		return nil, fmt.Errorf("failed to register schema: %w", err)
	}
	compiled, err := compiler.Compile("response.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Schema{raw: raw, compiled: compiled}, nil
}

// MustCompile compiles a schema document and panics on error. Test helper.
func MustCompile(raw string) *Schema {
	s, err := Compile(json.RawMessage(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the original schema document.
func (s *Schema) Raw() json.RawMessage {
	return s.raw
}

// Document returns the schema decoded into plain JSON values, in the shape
// vendor SDKs accept for response-schema parameters.
func (s *Schema) Document() (any, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(s.raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema document: %w", err)
	}
	return doc, nil
}

// ValidateText decodes a candidate response and validates it against the
// schema, returning the decoded value on success.
func (s *Schema) ValidateText(text string) (any, error) {
	value, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := s.compiled.Validate(value); err != nil {
		return nil, fmt.Errorf("response does not conform to schema: %w", err)
	}
	return value, nil
}
