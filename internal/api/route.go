package api

import (
	"net/http"
	"sort"
	"strings"
)

// Route is one endpoint contributed to the application.
type Route struct {
	Name        string
	Path        string
	Methods     []string
	Summary     string
	Description string
	Tags        []string
	Handler     http.Handler
}

// RouteCollection is the capability an addon router must implement to be
// included in the application.
type RouteCollection interface {
	Routes() []Route
}

// RouteList is a static RouteCollection.
type RouteList []Route

// Routes implements RouteCollection.
func (l RouteList) Routes() []Route {
	return l
}

// RouteInfo describes a registered route after the post-pass.
type RouteInfo struct {
	Name        string
	OperationID string
	Path        string
	Methods     []string
	Summary     string
	Description string
	Tags        []string
	Source      string
}

// OperationID normalises a route name into an identifier usable by
// generated API clients: lower-case, runs of other characters become "_".
func OperationID(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeMethods upper-cases, de-duplicates and sorts methods. An empty
// set means GET.
func normalizeMethods(methods []string) []string {
	seen := make(map[string]struct{}, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return []string{http.MethodGet}
	}
	sort.Strings(out)
	return out
}
