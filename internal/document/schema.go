package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const linesSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["lines"],
  "properties": {
    "id": {"type": "string"},
    "lines": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["global_index", "page", "text"],
        "properties": {
          "global_index": {"type": "integer", "minimum": 0},
          "page": {"type": "integer", "minimum": 0},
          "text": {"type": "string"},
          "font_rank": {"type": "integer", "minimum": 0},
          "bbox": {
            "type": "object",
            "required": ["x0", "y0", "x1", "y1"],
            "properties": {
              "x0": {"type": "number"},
              "y0": {"type": "number"},
              "x1": {"type": "number"},
              "y1": {"type": "number"}
            }
          }
        }
      }
    }
  }
}`

const outlineSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "entry": {
      "type": "object",
      "required": ["title"],
      "properties": {
        "numbering": {"type": "string"},
        "title": {"type": "string", "minLength": 1},
        "level": {"type": "integer", "minimum": 1},
        "children": {"type": "array", "items": {"$ref": "#/definitions/entry"}}
      }
    }
  },
  "type": "object",
  "required": ["headings"],
  "properties": {
    "headings": {"type": "array", "items": {"$ref": "#/definitions/entry"}}
  }
}`

var (
	schemaOnce    sync.Once
	linesSchema   *jsonschema.Schema
	outlineSchema *jsonschema.Schema
	schemaErr     error
)

func compileSchemas() {
	compile := func(name, raw string) (*jsonschema.Schema, error) {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", name, err)
		}
		return schema, nil
	}
	linesSchema, schemaErr = compile("lines.json", linesSchemaJSON)
	if schemaErr != nil {
		return
	}
	outlineSchema, schemaErr = compile("outline.json", outlineSchemaJSON)
}

// validateAgainst decodes raw as generic JSON and checks it with schema.
func validateAgainst(schema *jsonschema.Schema, field string, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &InputShapeError{Field: field, Reason: "invalid JSON", Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return &InputShapeError{Field: field, Reason: "does not match schema", Err: err}
	}
	return nil
}

// LoadLines reads a {"id","lines":[...]} document and validates it.
func LoadLines(r io.Reader) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read lines: %w", err)
	}
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return nil, schemaErr
	}
	raw = wrapArray(raw, "lines")
	if err := validateAgainst(linesSchema, "lines", raw); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &InputShapeError{Field: "lines", Reason: "failed to decode", Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadOutline reads a {"headings":[...]} outline and validates it.
func LoadOutline(r io.Reader) (*Outline, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read outline: %w", err)
	}
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return nil, schemaErr
	}
	raw = wrapArray(raw, "headings")
	if err := validateAgainst(outlineSchema, "outline", raw); err != nil {
		return nil, err
	}

	var payload struct {
		Headings []OutlineEntry `json:"headings"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &InputShapeError{Field: "outline", Reason: "failed to decode", Err: err}
	}
	return FromEntries(payload.Headings)
}

// wrapArray accepts a bare JSON array as shorthand for {"key": [...]}.
func wrapArray(raw []byte, key string) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return raw
	}
	var buf bytes.Buffer
	buf.WriteString(`{"` + key + `":`)
	buf.Write(trimmed)
	buf.WriteString("}")
	return buf.Bytes()
}
