package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// loadFile parses a config file into sections. YAML is used for .yaml/.yml
// files, ini for everything else.
func loadFile(path string) (sections, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	default:
		return loadINI(path)
	}
}

func loadINI(path string) (sections, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("parse ini: %w", err)
	}

	out := make(sections)
	for _, sec := range f.Sections() {
		if strings.EqualFold(sec.Name(), ini.DefaultSection) {
			if len(sec.Keys()) > 0 {
				return nil, fmt.Errorf("parse ini: key %q outside of a section", sec.Keys()[0].Name())
			}
			continue
		}
		if len(sec.Keys()) == 0 {
			out[normalize(sec.Name())] = make(map[string]string)
			continue
		}
		for _, key := range sec.Keys() {
			out.set(sec.Name(), key.Name(), key.Value())
		}
	}
	return out, nil
}

func loadYAML(path string) (sections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	out := make(sections)
	for section, values := range raw {
		if len(values) == 0 {
			out[normalize(section)] = make(map[string]string)
			continue
		}
		for key, value := range values {
			switch v := value.(type) {
			case nil:
				out.set(section, key, "")
			case map[string]any, []any:
				return nil, fmt.Errorf("parse YAML: %s.%s must be a scalar", section, key)
			default:
				out.set(section, key, fmt.Sprint(v))
			}
		}
	}
	return out, nil
}
