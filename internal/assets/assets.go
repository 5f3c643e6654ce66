// Package assets holds schemas embedded into the contentaudit binary.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed embedded_schemas
var schemaFS embed.FS

// ContentSchemaV1 is the path of the meta-schema that collection schema files must satisfy.
const ContentSchemaV1 = "content-schema-v1.json"

// ConfigSchemaV1 validates project configuration files.
const ConfigSchemaV1 = "config-schema-v1.json"

// GetSchema returns embedded schema bytes by name relative to embedded_schemas.
func GetSchema(name string) ([]byte, bool) {
	data, err := fs.ReadFile(schemaFS, "embedded_schemas/"+name)
	return data, err == nil && len(data) > 0
}

// GetSchemasFS exposes the embedded schema tree rooted at embedded_schemas.
func GetSchemasFS() fs.FS {
	if sub, err := fs.Sub(schemaFS, "embedded_schemas"); err == nil {
		return sub
	}
	return schemaFS
}
