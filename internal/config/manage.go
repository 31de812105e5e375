package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		switch s.typ {
		case kString, kFloat:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, len(specs))
	for i, s := range specs {
		keys[i] = s.key
	}
	return keys
}

const tokenKey = "api.token"

// GetAPIToken returns the bearer token protecting the note API. The
// NOTED_API_TOKEN environment variable wins; otherwise the token persisted
// in the config backend is used, generated on first call.
func GetAPIToken() (string, error) {
	if t := os.Getenv("NOTED_API_TOKEN"); t != "" {
		return t, nil
	}

	b := newFileBackend()
	t, ok, err := b.GetString(tokenKey)
	if err != nil {
		return "", fmt.Errorf("reading API token: %w", err)
	}
	if ok && t != "" {
		return t, nil
	}

	t = uuid.New().String()
	if err := b.SetString(tokenKey, t); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return t, nil
}
