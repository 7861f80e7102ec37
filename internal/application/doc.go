// Package application is the application factory. It wires the configuration
// store, database handle, addon registry and route table into an HTTP server,
// so that the CLI and the worker entry point stay focused on argument parsing
// and process orchestration.
package application
