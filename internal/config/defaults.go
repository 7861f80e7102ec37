package config

// Section names.
const (
	SectionServer   = "server"
	SectionDatabase = "database"
	SectionLogging  = "logging"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 8000
)

var defaults = map[string]map[string]string{
	SectionServer: {
		"name":                   "Tempo API",
		"host":                   defaultHost,
		"port":                   "8000",
		"reload":                 "false",
		"workers":                "1",
		"openapi_url":            "/openapi.json",
		"docs_url":               "/docs",
		"description":            "Tempo API",
		"version":                "0.1.0",
		"addons_path":            "addons",
		"metrics_url":            "/metrics",
		"rate_limit_rps":         "0",
		"rate_limit_burst":       "0",
		"shutdown_grace_period":  "10s",
		"read_header_timeout":    "5s",
		"write_timeout":          "15s",
		"idle_timeout":           "60s",
		"enable_request_logging": "true",
	},
	SectionDatabase: {
		"url":             "",
		"connect_timeout": "5s",
	},
	SectionLogging: {
		"level":  "info",
		"format": "console",
		"file":   "",
	},
}
