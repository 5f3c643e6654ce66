// Package schema models content collections and their declared fields, and
// loads them from a YAML, JSON or TOML schema file.
package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/safeio"
	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrUnknownCollection is returned when a collection name is not declared.
var ErrUnknownCollection = errors.New("unknown collection")

// ErrUnknownTemplate is returned when a document names a template its collection lacks.
var ErrUnknownTemplate = errors.New("unknown template")

// Format is the on-disk document format declared by a collection.
type Format string

const (
	FormatMarkdown    Format = "md"
	FormatMDX         Format = "mdx"
	FormatMarkdownAlt Format = "markdown"
	FormatJSON        Format = "json"
	FormatYAML        Format = "yaml"
	FormatYML         Format = "yml"
	FormatTOML        Format = "toml"
)

// ContentExtensions lists every file extension the document store understands.
var ContentExtensions = []string{".md", ".markdown", ".mdx", ".json", ".yaml", ".yml", ".toml"}

// Extensions returns the file extensions accepted for the format.
func (f Format) Extensions() []string {
	switch f {
	case FormatMarkdown, FormatMarkdownAlt:
		return []string{".md", ".markdown"}
	case FormatYAML, FormatYML:
		return []string{".yaml", ".yml"}
	default:
		return []string{"." + string(f)}
	}
}

// Accepts reports whether ext (with or without leading dot) matches the format.
func (f Format) Accepts(ext string) bool {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ext = strings.ToLower(ext)
	for _, e := range f.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// IsMarkdown reports whether documents carry frontmatter plus a body.
func (f Format) IsMarkdown() bool {
	return f == FormatMarkdown || f == FormatMarkdownAlt || f == FormatMDX
}

// FormatForExtension maps a file extension back to a document format.
func FormatForExtension(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown":
		return FormatMarkdown, true
	case "mdx":
		return FormatMDX, true
	case "json":
		return FormatJSON, true
	case "yaml", "yml":
		return FormatYAML, true
	case "toml":
		return FormatTOML, true
	}
	return "", false
}

// FieldType enumerates supported field types.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeDatetime  FieldType = "datetime"
	TypeImage     FieldType = "image"
	TypeReference FieldType = "reference"
	TypeRichText  FieldType = "rich-text"
	TypeObject    FieldType = "object"
)

// Field is a single declared field.
type Field struct {
	Name     string        `json:"name"`
	Label    string        `json:"label,omitempty"`
	Type     FieldType     `json:"type"`
	Required bool          `json:"required,omitempty"`
	List     bool          `json:"list,omitempty"`
	IsBody   bool          `json:"isBody,omitempty"`
	Default  interface{}   `json:"default,omitempty"`
	Options  []interface{} `json:"options,omitempty"`
	Fields   []*Field      `json:"fields,omitempty"`
}

// Template is a named field set; a collection uses either fields or templates.
type Template struct {
	Name   string   `json:"name"`
	Label  string   `json:"label,omitempty"`
	Fields []*Field `json:"fields"`
}

// Match narrows which files under a collection path belong to it.
// Patterns are doublestar globs evaluated against the path relative to the
// collection directory, without extension.
type Match struct {
	Include string `json:"include,omitempty"`
	Exclude string `json:"exclude,omitempty"`
}

// Collection is a named set of documents sharing a schema.
type Collection struct {
	Name      string      `json:"name"`
	Label     string      `json:"label,omitempty"`
	Path      string      `json:"path"`
	Format    Format      `json:"format,omitempty"`
	Match     *Match      `json:"match,omitempty"`
	Fields    []*Field    `json:"fields,omitempty"`
	Templates []*Template `json:"templates,omitempty"`

	mu       sync.Mutex
	compiled map[string]*gojsonschema.Schema
}

// Schema is the full set of declared collections.
type Schema struct {
	Collections []*Collection `json:"collections"`

	source string
}

// Load reads and validates a schema file. The format is chosen by extension.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- operator-supplied schema path
	if err != nil {
		return nil, errors.Wrapf(err, "read schema %s", path)
	}
	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, errors.Wrapf(err, "load schema %s", path)
	}
	s.source = path
	return s, nil
}

// Parse decodes schema bytes, validates them against the embedded meta-schema
// and normalizes collection definitions.
func Parse(data []byte, ext string) (*Schema, error) {
	var raw interface{}
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "parse YAML schema")
		}
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "parse JSON schema")
		}
	case "toml":
		var m map[string]interface{}
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrap(err, "parse TOML schema")
		}
		raw = m
	default:
		return nil, errors.Newf("unsupported schema format %q (use .yaml, .yml, .json or .toml)", ext)
	}

	res, err := ValidateDefinition(raw)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Path+": "+e.Message)
		}
		return nil, errors.WithHint(
			errors.Newf("schema definition invalid:\n  %s", strings.Join(msgs, "\n  ")),
			"see `contentaudit schema validate` for the expected layout")
	}

	// Round-trip through JSON so YAML and TOML share the struct tags
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "normalize schema")
	}
	var s Schema
	if err := json.Unmarshal(normalized, &s); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) normalize() error {
	seen := make(map[string]bool, len(s.Collections))
	for _, c := range s.Collections {
		if seen[c.Name] {
			return errors.Newf("duplicate collection %q", c.Name)
		}
		seen[c.Name] = true

		p, err := safeio.CleanUserPath(c.Path)
		if err != nil {
			return errors.Wrapf(err, "collection %q path %q", c.Name, c.Path)
		}
		c.Path = strings.TrimSuffix(p, "/")
		if c.Format == "" {
			c.Format = FormatMarkdown
		}
		if c.Match != nil {
			for _, pat := range []string{c.Match.Include, c.Match.Exclude} {
				if pat != "" && !doublestar.ValidatePattern(pat) {
					return errors.Newf("collection %q has invalid match pattern %q", c.Name, pat)
				}
			}
		}
	}
	return nil
}

// Source returns the file the schema was loaded from, if any.
func (s *Schema) Source() string {
	return s.source
}

// GetCollections returns collections in declaration order.
func (s *Schema) GetCollections() []*Collection {
	out := make([]*Collection, len(s.Collections))
	copy(out, s.Collections)
	return out
}

// GetCollection looks up a collection by name.
func (s *Schema) GetCollection(name string) (*Collection, error) {
	for _, c := range s.Collections {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownCollection, "%q", name)
}

// CollectionForPath returns the collection whose directory most specifically contains p.
func (s *Schema) CollectionForPath(p string) (*Collection, bool) {
	var best *Collection
	for _, c := range s.Collections {
		if strings.HasPrefix(p, c.Path+"/") && (best == nil || len(c.Path) > len(best.Path)) {
			best = c
		}
	}
	return best, best != nil
}

// HasTemplates reports whether documents select their field set via _template.
func (c *Collection) HasTemplates() bool {
	return len(c.Templates) > 0
}

// TemplateNames lists declared templates, sorted.
func (c *Collection) TemplateNames() []string {
	names := make([]string, 0, len(c.Templates))
	for _, t := range c.Templates {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// FieldsFor returns the field set for a template, or the collection fields
// when the collection has no templates.
func (c *Collection) FieldsFor(template string) ([]*Field, error) {
	if !c.HasTemplates() {
		return c.Fields, nil
	}
	for _, t := range c.Templates {
		if t.Name == template {
			return t.Fields, nil
		}
	}
	if template == "" {
		return nil, errors.Wrapf(ErrUnknownTemplate, "collection %q requires _template (one of %s)", c.Name, strings.Join(c.TemplateNames(), ", "))
	}
	return nil, errors.Wrapf(ErrUnknownTemplate, "%q in collection %q", template, c.Name)
}

// BodyField names the field that receives a markdown body, if declared.
func (c *Collection) BodyField(template string) string {
	fields, err := c.FieldsFor(template)
	if err != nil {
		return ""
	}
	for _, f := range fields {
		if f.IsBody {
			return f.Name
		}
	}
	return ""
}

// RelativePath strips the collection directory from a content-root path.
func (c *Collection) RelativePath(p string) string {
	return strings.TrimPrefix(p, c.Path+"/")
}

// DocumentPath joins a collection-relative path back onto the collection directory.
func (c *Collection) DocumentPath(rel string) string {
	return c.Path + "/" + strings.TrimPrefix(rel, "/")
}

// Matches applies match.include / match.exclude to a collection-relative path.
func (c *Collection) Matches(rel string) bool {
	if c.Match == nil {
		return true
	}
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	if c.Match.Include != "" {
		if ok, _ := doublestar.Match(c.Match.Include, stem); !ok {
			return false
		}
	}
	if c.Match.Exclude != "" {
		if ok, _ := doublestar.Match(c.Match.Exclude, stem); ok {
			return false
		}
	}
	return true
}
