// Package config resolves Tempo's runtime configuration from layered sources
// with precedence: CLI overrides > environment variables > config file >
// built-in defaults > caller fallback. Values are strings addressed by
// (section, key); typed views (Server, Database, Logging) sit on top.
//
// The server section is the only part that crosses into worker processes:
// the launcher exports it as TEMPO_SERVER_* variables and the worker rebuilds
// a Store with FromEnvironment.
package config
