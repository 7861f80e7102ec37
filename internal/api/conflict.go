package api

import (
	"fmt"
	"strings"
)

// ConflictKind names the uniqueness rule a pair of routes violates.
type ConflictKind string

const (
	ConflictName        ConflictKind = "name"
	ConflictOperationID ConflictKind = "operation id"
	ConflictEndpoint    ConflictKind = "path and method"
)

// Conflict is one uniqueness violation between two routes.
type Conflict struct {
	Kind   ConflictKind
	Key    string
	First  RouteInfo
	Second RouteInfo
}

func (c Conflict) String() string {
	return fmt.Sprintf("duplicate route %s %q (%s from %s, %s from %s)",
		c.Kind, c.Key, c.First.Name, c.First.Source, c.Second.Name, c.Second.Source)
}

// RouteConflictError is returned by Finalize when the merged route table
// breaks a uniqueness rule. The application must not start.
type RouteConflictError struct {
	Conflicts []Conflict
}

func (e *RouteConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return "route table conflict: " + strings.Join(parts, "; ")
}
