// Package database provides the SQL handle shared by the shell and by addon
// routes. The handle is created from the [database] url setting; when no url
// is configured every operation fails immediately with ErrNotConfigured.
package database
