package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Environment variables forming the launcher -> worker contract.
const (
	// EnvPrefix prefixes every exported server-section key, e.g. TEMPO_SERVER_HOST.
	EnvPrefix = "TEMPO_SERVER_"
	// ConfigFileEnv names the config file the launcher loaded so the worker can
	// re-resolve the non-server sections from the same file.
	ConfigFileEnv = "TEMPO_CONFIG"
)

// EnvKey returns the environment variable carrying a server-section key.
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(normalize(key))
}

func (s *Store) loadEnv(environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		if key == "" {
			continue
		}
		s.layers[layerEnv].set(SectionServer, key, value)
		s.logger.Debug("loaded setting from environment", zap.String("key", key))
	}
}

// EnvPairs serialises the merged server section as sorted KEY=value pairs,
// plus TEMPO_CONFIG when a config file was loaded. Other sections are never
// transmitted.
func (s *Store) EnvPairs() []string {
	items := s.Items(SectionServer)
	pairs := make([]string, 0, len(items)+1)
	for _, key := range sortedKeys(items) {
		pairs = append(pairs, EnvKey(key)+"="+items[key])
	}
	if s.file != "" {
		pairs = append(pairs, ConfigFileEnv+"="+s.file)
	}
	sort.Strings(pairs)
	return pairs
}

// Export publishes EnvPairs into the current process environment. It must
// complete before the server runtime starts.
func (s *Store) Export() error {
	for _, pair := range s.EnvPairs() {
		name, value, _ := strings.Cut(pair, "=")
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		s.logger.Debug("exported setting", zap.String("env", name), zap.String("value", value))
	}
	return nil
}

// FromEnvironment rebuilds a Store on the worker side: defaults, the file
// named by TEMPO_CONFIG (if any) and the TEMPO_SERVER_* layer.
func FromEnvironment(environ []string, opts ...Option) *Store {
	file := ""
	for _, kv := range environ {
		if name, value, ok := strings.Cut(kv, "="); ok && name == ConfigFileEnv {
			file = value
		}
	}
	base := []Option{WithEnviron(environ), WithFile(file)}
	return New(append(base, opts...)...)
}
