package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultFile is the config file looked up in the working directory when the
// CLI is not given an explicit --config path.
const DefaultFile = "tempo.conf"

// ErrMissingKey is returned by Lookup when no section defines the key.
var ErrMissingKey = errors.New("config key not found")

// KeyError describes a failed Lookup. Sections is set for ambiguous keys.
type KeyError struct {
	Key      string
	Sections []string
}

func (e *KeyError) Error() string {
	if len(e.Sections) > 1 {
		return fmt.Sprintf("ambiguous key %q found in sections: %s (use 'section.key' syntax)",
			e.Key, strings.Join(e.Sections, ", "))
	}
	return fmt.Sprintf("%s: %q", ErrMissingKey.Error(), e.Key)
}

// Unwrap lets errors.Is(err, ErrMissingKey) match missing keys.
func (e *KeyError) Unwrap() error {
	if len(e.Sections) > 1 {
		return nil
	}
	return ErrMissingKey
}

// Ambiguous reports whether the key matched more than one section.
func (e *KeyError) Ambiguous() bool {
	return len(e.Sections) > 1
}

type layer int

const (
	layerDefault layer = iota
	layerFile
	layerEnv
	layerOverride
	numLayers
)

type sections map[string]map[string]string

func (s sections) set(section, key, value string) {
	section = normalize(section)
	key = normalize(key)
	if s[section] == nil {
		s[section] = make(map[string]string)
	}
	s[section][key] = value
}

// Store holds every configuration layer of one process. It is built once at
// startup and is read-only once handed to other components.
type Store struct {
	layers [numLayers]sections
	file   string
	logger *zap.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	file    string
	environ []string
	envSet  bool
	logger  *zap.Logger
}

// WithFile loads the given config file. An empty path disables the file layer.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithEnviron overrides the environment the env layer is read from
// (defaults to os.Environ()).
func WithEnviron(environ []string) Option {
	return func(o *options) {
		o.environ = environ
		o.envSet = true
	}
}

// WithLogger sets the logger used while loading.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New builds a Store from defaults, the optional file and the environment.
// A missing or malformed file is logged and leaves the defaults in place.
func New(opts ...Option) *Store {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.envSet {
		o.environ = os.Environ()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s := &Store{logger: o.logger}
	for i := range s.layers {
		s.layers[i] = make(sections)
	}
	for section, values := range defaults {
		for key, value := range values {
			s.layers[layerDefault].set(section, key, value)
		}
	}

	if o.file != "" {
		s.loadFile(o.file)
	}
	s.loadEnv(o.environ)

	return s
}

func (s *Store) loadFile(path string) {
	if _, err := os.Stat(path); err != nil {
		s.logger.Debug("config file not found, using defaults", zap.String("path", path))
		return
	}

	values, err := loadFile(path)
	if err != nil {
		s.logger.Warn("failed to read config file, using defaults",
			zap.String("path", path), zap.Error(err))
		return
	}

	s.layers[layerFile] = values
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	s.file = path
	s.logger.Info("loaded configuration", zap.String("path", path))
}

// File returns the absolute path of the loaded config file, or "" when the
// store runs on defaults only.
func (s *Store) File() string {
	return s.file
}

func (s *Store) lookup(section, key string) (string, bool) {
	section = normalize(section)
	key = normalize(key)
	for l := numLayers - 1; l >= 0; l-- {
		if v, ok := s.layers[l][section][key]; ok {
			return v, true
		}
	}
	return "", false
}

// Has reports whether any layer defines section.key.
func (s *Store) Has(section, key string) bool {
	_, ok := s.lookup(section, key)
	return ok
}

// Get returns the highest-priority value for section.key, or fallback.
func (s *Store) Get(section, key, fallback string) string {
	if v, ok := s.lookup(section, key); ok {
		return v
	}
	return fallback
}

// GetInt parses section.key as an integer, returning fallback when the key is
// missing or not a number.
func (s *Store) GetInt(section, key string, fallback int) int {
	v, ok := s.lookup(section, key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// GetFloat parses section.key as a float, returning fallback on failure.
func (s *Store) GetFloat(section, key string, fallback float64) float64 {
	v, ok := s.lookup(section, key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetBool parses section.key as a boolean. Accepted values are
// 1/yes/true/on and 0/no/false/off; anything else yields fallback.
func (s *Store) GetBool(section, key string, fallback bool) bool {
	v, ok := s.lookup(section, key)
	if !ok {
		return fallback
	}
	b, ok := parseBool(v)
	if !ok {
		return fallback
	}
	return b
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true", "on":
		return true, true
	case "0", "no", "false", "off":
		return false, true
	}
	return false, false
}

// Set stores an explicit override for section.key.
func (s *Store) Set(section, key, value string) {
	s.layers[layerOverride].set(section, key, value)
}

// Update applies a section -> key -> value mapping as explicit overrides.
func (s *Store) Update(values map[string]map[string]string) {
	for section, kv := range values {
		for key, value := range kv {
			s.Set(section, key, value)
		}
	}
}

// Lookup resolves "section.key" or a bare "key". A bare key is searched in
// every section and must match exactly one of them.
func (s *Store) Lookup(key string) (string, error) {
	if section, k, ok := strings.Cut(key, "."); ok {
		v, found := s.lookup(section, k)
		if !found {
			return "", &KeyError{Key: key}
		}
		return v, nil
	}

	var (
		matched []string
		value   string
	)
	for _, section := range s.Sections() {
		if v, ok := s.lookup(section, key); ok {
			matched = append(matched, section)
			value = v
		}
	}
	switch len(matched) {
	case 0:
		return "", &KeyError{Key: key}
	case 1:
		return value, nil
	default:
		return "", &KeyError{Key: key, Sections: matched}
	}
}

// Sections returns the sorted union of section names across all layers.
func (s *Store) Sections() []string {
	seen := make(map[string]struct{})
	for _, l := range s.layers {
		for section := range l {
			seen[section] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for section := range seen {
		out = append(out, section)
	}
	sort.Strings(out)
	return out
}

// Items returns the merged key/value view of one section.
func (s *Store) Items(section string) map[string]string {
	section = normalize(section)
	out := make(map[string]string)
	for _, l := range s.layers {
		for key, value := range l[section] {
			out[key] = value
		}
	}
	return out
}

// String renders the merged store as an ini-like listing.
func (s *Store) String() string {
	var b strings.Builder
	for i, section := range s.Sections() {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", section)
		items := s.Items(section)
		for _, key := range sortedKeys(items) {
			fmt.Fprintf(&b, "  %s = %s\n", key, items[key])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
