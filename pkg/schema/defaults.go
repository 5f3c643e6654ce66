package schema

// TopLevelDefaults collects declared defaults of non-list top-level fields.
func TopLevelDefaults(fields []*Field) map[string]interface{} {
	defaults := make(map[string]interface{})
	for _, f := range fields {
		if f.List || f.Default == nil {
			continue
		}
		defaults[f.Name] = f.Default
	}
	return defaults
}

// ApplyDefaults returns a copy of values with defaults filled in for missing
// or null keys. Stored values always win.
func ApplyDefaults(values, defaults map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range values {
		if v == nil {
			if _, hasDefault := defaults[k]; hasDefault {
				continue
			}
		}
		out[k] = v
	}
	return out
}
