package schema

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/internal/assets"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Path    string `json:"path,omitempty"` // dotted field path, "root" for the document itself
	Message string `json:"message"`
}

// Result holds the validation result.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var metaSchema *gojsonschema.Schema

func init() {
	data, ok := assets.GetSchema(assets.ContentSchemaV1)
	if !ok {
		return
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return
	}
	metaSchema = s
}

// ValidateDefinition checks a decoded schema file against the embedded meta-schema.
func ValidateDefinition(raw interface{}) (*Result, error) {
	if metaSchema == nil {
		return nil, errors.New("embedded content schema unavailable")
	}
	return toResult(metaSchema.Validate(gojsonschema.NewGoLoader(raw)))
}

// Compile builds and caches the JSON Schema for template. Errors here concern
// the collection definition, never a particular document.
func (c *Collection) Compile(template string) error {
	_, err := c.compiledSchema(template)
	return err
}

// Validate checks document values against the field set selected by template.
// An error after a successful Compile means the values themselves could not
// be loaded, e.g. a non-finite number.
func (c *Collection) Validate(template string, values map[string]interface{}) (*Result, error) {
	compiled, err := c.compiledSchema(template)
	if err != nil {
		return nil, err
	}
	return toResult(compiled.Validate(gojsonschema.NewGoLoader(normalizeValue(values))))
}

// normalizeValue rewrites YAML mappings with non-string keys into
// string-keyed maps so they validate as objects.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeValue(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}

func (c *Collection) compiledSchema(template string) (*gojsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.compiled[template]; ok {
		return s, nil
	}
	doc, err := c.JSONSchema(template)
	if err != nil {
		return nil, err
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, errors.Wrapf(err, "compile schema for collection %q", c.Name)
	}
	if c.compiled == nil {
		c.compiled = make(map[string]*gojsonschema.Schema)
	}
	c.compiled[template] = s
	return s, nil
}

func toResult(result *gojsonschema.Result, err error) (*Result, error) {
	if err != nil {
		return nil, errors.Wrap(err, "validation error")
	}
	res := &Result{Valid: result.Valid()}
	if !result.Valid() {
		for _, verr := range result.Errors() {
			field := verr.Field()
			if field == "" || field == "(root)" {
				field = "root"
			}
			res.Errors = append(res.Errors, ValidationError{
				Path:    field,
				Message: verr.Description(),
			})
		}
	}
	return res, nil
}

// JSONSchema builds the JSON Schema document for a collection's field set.
func (c *Collection) JSONSchema(template string) (map[string]interface{}, error) {
	fields, err := c.FieldsFor(template)
	if err != nil {
		return nil, err
	}
	doc := objectSchema(fields)
	doc["$schema"] = "http://json-schema.org/draft-07/schema#"
	doc["title"] = c.Name
	return doc, nil
}

func objectSchema(fields []*Field) map[string]interface{} {
	props := make(map[string]interface{}, len(fields))
	var required []interface{}
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func fieldSchema(f *Field) map[string]interface{} {
	item := scalarSchema(f)
	if f.List {
		list := map[string]interface{}{"type": "array", "items": item}
		if !f.Required {
			list["type"] = []interface{}{"array", "null"}
		}
		return list
	}
	if !f.Required {
		if t, ok := item["type"].(string); ok {
			item["type"] = []interface{}{t, "null"}
		}
	}
	return item
}

func scalarSchema(f *Field) map[string]interface{} {
	var s map[string]interface{}
	switch f.Type {
	case TypeNumber:
		s = map[string]interface{}{"type": "number"}
	case TypeBoolean:
		s = map[string]interface{}{"type": "boolean"}
	case TypeObject:
		s = objectSchema(f.Fields)
	case TypeRichText:
		// Markdown string or a parsed rich-text tree
		return map[string]interface{}{"type": []interface{}{"string", "object", "null"}}
	default:
		s = map[string]interface{}{"type": "string"}
	}
	if len(f.Options) > 0 {
		opts := make([]interface{}, len(f.Options))
		copy(opts, f.Options)
		if !f.Required && !f.List {
			opts = append(opts, nil)
		}
		s["enum"] = opts
	}
	return s
}
