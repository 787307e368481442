// Package config decodes the ControllerConfig carried in the config
// ConfigMap's data.config key (spec.md §3), using gopkg.in/yaml.v3 — the
// YAML library the teacher and the rest of the retrieved pack
// (kpt-config-sync) standardize on.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/travisghansen/kubernetes-controller-go/internal/jsonval"
)

// PluginConfig is one entry of ControllerConfig.Plugins: an enabled flag
// plus an opaque, plugin-specific payload.
type PluginConfig struct {
	Enabled bool
	Opaque  jsonval.Value
}

// ControllerConfig is the parsed contents of the config ConfigMap.
type ControllerConfig struct {
	Enabled      bool
	ControllerID string
	Plugins      map[string]PluginConfig
}

// yamlDoc mirrors ControllerConfig's wire shape for yaml.v3 unmarshaling;
// ControllerConfig itself stays in jsonval terms so the rest of the
// framework never imports yaml.v3 directly.
type yamlDoc struct {
	Enabled      bool                  `yaml:"enabled"`
	ControllerID string                `yaml:"controller-id"`
	Plugins      map[string]yamlPlugin `yaml:"plugins"`
}

type yamlPlugin struct {
	Enabled bool                   `yaml:"enabled"`
	Rest    map[string]interface{} `yaml:",inline"`
}

// Parse decodes a YAML document (the config ConfigMap's data.config value)
// into a ControllerConfig.
func Parse(doc string) (*ControllerConfig, error) {
	var raw yamlDoc
	if err := yaml.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse controller config: %w", err)
	}

	cfg := &ControllerConfig{
		Enabled:      raw.Enabled,
		ControllerID: raw.ControllerID,
		Plugins:      make(map[string]PluginConfig, len(raw.Plugins)),
	}
	for id, p := range raw.Plugins {
		cfg.Plugins[id] = PluginConfig{
			Enabled: p.Enabled,
			Opaque:  jsonval.FromAny(normalizeYAMLMap(p.Rest)),
		}
	}
	return cfg, nil
}

// normalizeYAMLMap converts a yaml.v3-decoded map[string]interface{} (whose
// nested maps/slices yaml.v3 already decodes as string-keyed, unlike
// yaml.v2) into the shape jsonval.FromAny expects, recursively normalizing
// any map[interface{}]interface{} a custom UnmarshalYAML implementation
// might still have produced upstream.
func normalizeYAMLMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return normalizeYAMLMap(t)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAMLValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}
