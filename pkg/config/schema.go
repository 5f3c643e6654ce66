package config

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fulmenhq/contentaudit/internal/assets"
	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ValidateConfig checks a project config file against the embedded schema.
// ext selects the decoder (".yaml", ".yml", ".json" or ".toml").
func ValidateConfig(data []byte, ext string) error {
	raw := map[string]interface{}{}
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return errors.Wrap(err, "parse YAML config")
		}
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return errors.Wrap(err, "parse JSON config")
		}
	case "toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return errors.Wrap(err, "parse TOML config")
		}
	default:
		return errors.Newf("unsupported config format %q", ext)
	}
	if raw == nil {
		return nil
	}

	schemaData, ok := assets.GetSchema(assets.ConfigSchemaV1)
	if !ok {
		return errors.New("embedded config schema unavailable")
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaData), gojsonschema.NewGoLoader(raw))
	if err != nil {
		return errors.Wrap(err, "schema validation error")
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return errors.WithHint(
			errors.Newf("configuration validation failed:\n%s", strings.Join(msgs, "\n")),
			"supported sections are content, index, telemetry and audit")
	}
	return nil
}
