package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeToJSON normalizes raw config bytes to JSON. Plain JSON files pass
// through untouched; .yaml/.yml files are decoded and re-marshaled so the
// strict decoder in Load applies its unknown-key check to both formats.
// The returned format name only feeds error messages.
func decodeToJSON(path string, raw []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return raw, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return out, "yaml", nil
}

// stringifyKeys walks the decoded document and forces every map key to a
// string; yaml allows non-string keys and encoding/json does not.
func stringifyKeys(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, item := range node {
			out[fmt.Sprint(k)] = stringifyKeys(item)
		}
		return out
	case map[string]any:
		for k, item := range node {
			node[k] = stringifyKeys(item)
		}
		return node
	case []any:
		for i, item := range node {
			node[i] = stringifyKeys(item)
		}
		return node
	}
	return v
}
