package http

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// getOpenAPIJSON returns the embedded API description as JSON. The document
// is converted once and cached.
var getOpenAPIJSON = sync.OnceValues(func() ([]byte, error) {
	return yamlToJSON(openAPIYAML)
})

// yamlToJSON converts a YAML document to indented JSON.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing OpenAPI document: %w", err)
	}
	return json.MarshalIndent(jsonCompatible(doc), "", "  ")
}

// jsonCompatible rewrites YAML maps with non-string keys, which
// encoding/json cannot marshal. Non-string keys are formatted with %v.
func jsonCompatible(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for key, value := range v {
			v[key] = jsonCompatible(value)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[fmt.Sprint(key)] = jsonCompatible(value)
		}
		return out
	case []any:
		for i, value := range v {
			v[i] = jsonCompatible(value)
		}
		return v
	default:
		return v
	}
}
