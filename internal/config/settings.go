package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ServerSettings is the typed view of the server section.
type ServerSettings struct {
	Name                 string
	Host                 string
	Port                 int
	Reload               bool
	Workers              int
	OpenAPIURL           string
	DocsURL              string
	Description          string
	Version              string
	AddonsPath           string
	MetricsURL           string
	RateLimitRPS         float64
	RateLimitBurst       int
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
}

// Addr returns the host:port listen address.
func (s ServerSettings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseSettings is the typed view of the database section.
type DatabaseSettings struct {
	URL            string
	ConnectTimeout time.Duration
}

// LogSettings is the typed view of the logging section.
type LogSettings struct {
	Level  string
	Format string
	File   string
}

// CLIOverrides holds server flags given on the command line. Nil fields were
// not set by the user and leave lower layers untouched.
type CLIOverrides struct {
	Name    *string
	Host    *string
	Port    *int
	Reload  *bool
	Workers *int
}

// ApplyOverrides writes the set CLI flags into the override layer.
func (s *Store) ApplyOverrides(o CLIOverrides) {
	if o.Name != nil && *o.Name != "" {
		s.Set(SectionServer, "name", *o.Name)
	}
	if o.Host != nil && *o.Host != "" {
		s.Set(SectionServer, "host", *o.Host)
	}
	if o.Port != nil {
		s.Set(SectionServer, "port", strconv.Itoa(*o.Port))
	}
	if o.Reload != nil {
		s.Set(SectionServer, "reload", strconv.FormatBool(*o.Reload))
	}
	if o.Workers != nil {
		s.Set(SectionServer, "workers", strconv.Itoa(*o.Workers))
	}
}

// Server resolves the server section. Host and port fall back to 0.0.0.0:8000
// when no layer sets them; a port that is not a number in 1..65535 is an error.
func (s *Store) Server() (ServerSettings, error) {
	host := strings.TrimSpace(s.Get(SectionServer, "host", defaultHost))
	if host == "" {
		host = defaultHost
	}

	port := defaultPort
	if raw := strings.TrimSpace(s.Get(SectionServer, "port", "")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return ServerSettings{}, fmt.Errorf("server.port: invalid integer %q", raw)
		}
		port = p
	}
	if port < 1 || port > 65535 {
		return ServerSettings{}, fmt.Errorf("server.port must be between 1 and 65535, got %d", port)
	}

	workers := s.GetInt(SectionServer, "workers", 1)
	if workers < 1 {
		workers = 1
	}

	rps := s.GetFloat(SectionServer, "rate_limit_rps", 0)
	burst := s.GetInt(SectionServer, "rate_limit_burst", 0)
	if rps < 0 {
		return ServerSettings{}, fmt.Errorf("server.rate_limit_rps must be >= 0")
	}
	if burst < 0 {
		return ServerSettings{}, fmt.Errorf("server.rate_limit_burst must be >= 0")
	}

	return ServerSettings{
		Name:                 s.Get(SectionServer, "name", "Tempo API"),
		Host:                 host,
		Port:                 port,
		Reload:               s.GetBool(SectionServer, "reload", false),
		Workers:              workers,
		OpenAPIURL:           s.Get(SectionServer, "openapi_url", ""),
		DocsURL:              s.Get(SectionServer, "docs_url", ""),
		Description:          s.Get(SectionServer, "description", ""),
		Version:              s.Get(SectionServer, "version", ""),
		AddonsPath:           s.Get(SectionServer, "addons_path", "addons"),
		MetricsURL:           s.Get(SectionServer, "metrics_url", ""),
		RateLimitRPS:         rps,
		RateLimitBurst:       burst,
		ShutdownGracePeriod:  s.duration(SectionServer, "shutdown_grace_period", 10*time.Second),
		ReadHeaderTimeout:    s.duration(SectionServer, "read_header_timeout", 5*time.Second),
		WriteTimeout:         s.duration(SectionServer, "write_timeout", 15*time.Second),
		IdleTimeout:          s.duration(SectionServer, "idle_timeout", 60*time.Second),
		EnableRequestLogging: s.GetBool(SectionServer, "enable_request_logging", true),
	}, nil
}

// Database resolves the database section.
func (s *Store) Database() DatabaseSettings {
	return DatabaseSettings{
		URL:            strings.TrimSpace(s.Get(SectionDatabase, "url", "")),
		ConnectTimeout: s.duration(SectionDatabase, "connect_timeout", 5*time.Second),
	}
}

// Logging resolves the logging section.
func (s *Store) Logging() LogSettings {
	return LogSettings{
		Level:  s.Get(SectionLogging, "level", "info"),
		Format: s.Get(SectionLogging, "format", "console"),
		File:   s.Get(SectionLogging, "file", ""),
	}
}

// duration parses a Go duration, falling back to def when the value is
// missing, malformed or not positive.
func (s *Store) duration(section, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s.Get(section, key, "")))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
