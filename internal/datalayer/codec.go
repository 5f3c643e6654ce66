package datalayer

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/pkg/schema"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// BodyKey holds a markdown body when the collection declares no isBody field.
const BodyKey = "_body"

const frontmatterFence = "---"

// Decode parses raw document bytes into field values. Markdown bodies land
// under bodyField, or BodyKey when bodyField is empty.
func Decode(format schema.Format, data []byte, bodyField string) (map[string]interface{}, error) {
	if format.IsMarkdown() {
		return decodeMarkdown(data, bodyField)
	}
	values := map[string]interface{}{}
	switch format {
	case schema.FormatJSON:
		var raw interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "parse JSON document")
		}
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.New("JSON document root must be an object")
		}
		values = m
	case schema.FormatYAML, schema.FormatYML:
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, errors.Wrap(err, "parse YAML document")
		}
		if values == nil {
			values = map[string]interface{}{}
		}
	case schema.FormatTOML:
		if err := toml.Unmarshal(data, &values); err != nil {
			return nil, errors.Wrap(err, "parse TOML document")
		}
	default:
		return nil, errors.Newf("unsupported document format %q", format)
	}
	return values, nil
}

func decodeMarkdown(data []byte, bodyField string) (map[string]interface{}, error) {
	if bodyField == "" {
		bodyField = BodyKey
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	values := map[string]interface{}{}

	if !strings.HasPrefix(text, frontmatterFence+"\n") {
		values[bodyField] = text
		return values, nil
	}
	rest := text[len(frontmatterFence)+1:]
	var front, body string
	if strings.HasPrefix(rest, frontmatterFence+"\n") || rest == frontmatterFence {
		body = strings.TrimPrefix(strings.TrimPrefix(rest, frontmatterFence), "\n")
	} else {
		end := strings.Index(rest, "\n"+frontmatterFence+"\n")
		switch {
		case end >= 0:
			front = rest[:end]
			body = rest[end+len(frontmatterFence)+2:]
		case strings.HasSuffix(rest, "\n"+frontmatterFence):
			front = strings.TrimSuffix(rest, "\n"+frontmatterFence)
		default:
			return nil, errors.New("unterminated frontmatter")
		}
	}

	if strings.TrimSpace(front) != "" {
		if err := yaml.Unmarshal([]byte(front), &values); err != nil {
			return nil, errors.Wrap(err, "parse frontmatter")
		}
		if values == nil {
			values = map[string]interface{}{}
		}
	}
	values[bodyField] = strings.TrimPrefix(body, "\n")
	return values, nil
}

// Encode serializes field values in the collection's format. Keys are emitted
// in sorted order so repeated writes are byte-stable.
func Encode(format schema.Format, values map[string]interface{}, bodyField string) ([]byte, error) {
	if format.IsMarkdown() {
		return encodeMarkdown(values, bodyField)
	}
	switch format {
	case schema.FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(values); err != nil {
			return nil, errors.Wrap(err, "encode JSON document")
		}
		return buf.Bytes(), nil
	case schema.FormatYAML, schema.FormatYML:
		return encodeYAML(values)
	case schema.FormatTOML:
		data, err := toml.Marshal(values)
		if err != nil {
			return nil, errors.Wrap(err, "encode TOML document")
		}
		return data, nil
	default:
		return nil, errors.Newf("unsupported document format %q", format)
	}
}

func encodeYAML(values map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(values); err != nil {
		return nil, errors.Wrap(err, "encode YAML document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode YAML document")
	}
	return buf.Bytes(), nil
}

func encodeMarkdown(values map[string]interface{}, bodyField string) ([]byte, error) {
	front := make(map[string]interface{}, len(values))
	var body string
	for k, v := range values {
		if k == bodyField || k == BodyKey {
			if s, ok := v.(string); ok {
				body = s
			}
			continue
		}
		front[k] = v
	}

	var buf bytes.Buffer
	if len(front) > 0 {
		fm, err := encodeYAML(front)
		if err != nil {
			return nil, err
		}
		buf.WriteString(frontmatterFence + "\n")
		buf.Write(fm)
		buf.WriteString(frontmatterFence + "\n")
	}
	buf.WriteString(body)
	return buf.Bytes(), nil
}
