package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://cubetonic.app/schemas/"

// Validator checks raw frames against the embedded message schemas.
// It is safe for concurrent use once built.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	names, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range names {
		b, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+path.Base(name), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		base := path.Base(name)
		s, err := c.Compile(schemaBaseURL + base)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", base, err)
		}
		msgType := strings.ToUpper(strings.TrimSuffix(base, ".schema.json"))
		v.schemas[msgType] = s
	}
	return v, nil
}

// Has reports whether a schema exists for msgType.
func (v *Validator) Has(msgType string) bool {
	_, ok := v.schemas[msgType]
	return ok
}

// Validate checks raw against the schema selected by its type field.
func (v *Validator) Validate(raw []byte) error {
	base, err := DecodeBase(raw)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	s, ok := v.schemas[base.Type]
	if !ok {
		return fmt.Errorf("no schema for message type %q", base.Type)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", base.Type, err)
	}
	return nil
}
