// Package cli is the tempo command dispatcher. Commands live in an explicit
// table built by DefaultRegistry; each command parses its own flags.
package cli
