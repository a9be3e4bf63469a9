// Package settings is a small string key/value store for application settings, loaded
// from and saved to a JSON (comments allowed) or YAML file.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Service holds settings in memory. Safe for concurrent use.
type Service struct {
	mu       sync.RWMutex
	settings map[string]string
}

// New returns an empty Service.
func New() *Service {
	return &Service{settings: make(map[string]string)}
}

// AllSettings returns a copy of every setting.
func (s *Service) AllSettings() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

// AddSetting sets name to value, overwriting any existing value.
func (s *Service) AddSetting(name, value string) {
	s.mu.Lock()
	s.settings[name] = value
	s.mu.Unlock()
}

// SetDefault sets name to value only if name is not already set.
func (s *Service) SetDefault(name, value string) {
	s.mu.Lock()
	if _, ok := s.settings[name]; !ok {
		s.settings[name] = value
	}
	s.mu.Unlock()
}

// RemoveSetting deletes name. Removing a missing setting is a no-op.
func (s *Service) RemoveSetting(name string) {
	s.mu.Lock()
	delete(s.settings, name)
	s.mu.Unlock()
}

// GetSetting returns the value of name and whether it is set.
func (s *Service) GetSetting(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[name]
	return v, ok
}

// Load replaces all settings with the contents of path. Files ending in .yaml or .yml
// are parsed as YAML; anything else as JSON, which may contain comments and trailing commas.
// Values must be scalars; numbers and booleans are stored in their text form.
func (s *Service) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("settings: read %s: %w", path, err)
	}
	raw := map[string]any{}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(jsonc.ToJSON(data), &raw)
	}
	if err != nil {
		return fmt.Errorf("settings: parse %s: %w", path, err)
	}
	loaded := make(map[string]string, len(raw))
	for k, v := range raw {
		str, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("settings: %s: key %q: %w", path, k, err)
		}
		loaded[k] = str
	}

	s.mu.Lock()
	s.settings = loaded
	s.mu.Unlock()
	return nil
}

// Save writes all settings to path in the format chosen by its extension.
func (s *Service) Save(path string) error {
	all := s.AllSettings()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(all)
	} else {
		data, err = json.MarshalIndent(all, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("settings: create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
