package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// secretKeys lists dotted config keys whose values are redacted in listings.
var secretKeys = map[string]struct{}{
	"llm.api_key": {},
}

// IsSecretKey reports whether a dotted key holds a secret.
func IsSecretKey(key string) bool {
	_, ok := secretKeys[key]
	return ok
}

// ListValues flattens the config into dotted keys. When redact is true,
// secret values are masked.
func ListValues(cfg *Config, redact bool) (map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}

	out := map[string]any{}
	flatten("", tree, out)
	if redact {
		for key := range out {
			if IsSecretKey(key) && out[key] != "" {
				out[key] = "********"
			}
		}
	}
	return out, nil
}

func flatten(prefix string, tree map[string]any, out map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// GetValue loads the config at path and returns the value for a dotted key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	values, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	v, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(knownKeys(values), ", "))
	}
	return v, nil
}

// SetValue loads the config, sets a dotted key from its string form, and
// writes the file back.
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return err
	}

	parts := strings.Split(key, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		sub, ok := node[part].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		node = sub
	}
	leaf := parts[len(parts)-1]
	current, ok := node[leaf]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	node[leaf] = coerce(value, current)

	updated, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(updated, cfg); err != nil {
		return fmt.Errorf("invalid value for %q: %w", key, err)
	}
	return Save(path, cfg)
}

// coerce converts the string form to match the type of the current value.
func coerce(value string, current any) any {
	switch current.(type) {
	case float64:
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	case bool:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return value
}

func knownKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
