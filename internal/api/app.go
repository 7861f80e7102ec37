package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ErrFinalized is returned when routes are included after Finalize.
var ErrFinalized = errors.New("application already finalized")

// Info carries the application metadata published in the OpenAPI document.
// Empty URLs disable the corresponding endpoint.
type Info struct {
	Title       string
	Description string
	Version     string
	OpenAPIURL  string
	DocsURL     string
	MetricsURL  string
}

// Option configures the behaviour of New.
type Option func(*appConfig)

type appConfig struct {
	enableLogging bool
	rateLimiter   rateLimiter
	corsOrigins   []string
	clock         func() time.Time
}

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) Option {
	return func(cfg *appConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) Option {
	return func(cfg *appConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit installs a token bucket limiter. Zero rps or burst disables
// rate limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *appConfig) {
		if rps <= 0 || burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newTokenBucketLimiter(rps, burst)
	}
}

// WithCORSOrigins replaces the allowed CORS origins.
func WithCORSOrigins(origins ...string) Option {
	return func(cfg *appConfig) {
		cfg.corsOrigins = origins
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(cfg *appConfig) {
		cfg.clock = clock
	}
}

var defaultCORSOrigins = []string{
	"http://localhost",
	"http://localhost:8000",
	"http://localhost:8080",
}

type entry struct {
	route    Route
	methods  []string
	source   string
	internal bool
}

// App is the application object: it collects routes from the base router and
// every addon, then validates the merged table once in Finalize.
type App struct {
	info    Info
	logger  *zap.Logger
	cfg     appConfig
	metrics *metrics

	entries   []entry
	routes    []RouteInfo
	finalized bool
}

// New creates an App with the built-in health route registered.
func New(info Info, logger *zap.Logger, opts ...Option) *App {
	cfg := appConfig{
		enableLogging: true,
		corsOrigins:   defaultCORSOrigins,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		info:    info,
		logger:  logger,
		cfg:     cfg,
		metrics: newMetrics(),
	}
	a.entries = append(a.entries, entry{
		route: Route{
			Name:    "health",
			Path:    "/health",
			Methods: []string{http.MethodGet},
			Summary: "Liveness probe",
			Tags:    []string{"system"},
			Handler: http.HandlerFunc(a.handleHealth),
		},
		methods: []string{http.MethodGet},
		source:  "tempo",
	})
	return a
}

// IncludeRouter appends every route of rc to the route table. Uniqueness is
// not checked here; Finalize checks the whole table once.
func (a *App) IncludeRouter(rc RouteCollection, source string) error {
	if a.finalized {
		return ErrFinalized
	}
	if rc == nil {
		return errors.New("nil route collection")
	}

	routes := rc.Routes()
	added := make([]entry, 0, len(routes))
	for i, r := range routes {
		if err := validateRoute(r); err != nil {
			return fmt.Errorf("route %d (%q): %w", i, r.Name, err)
		}
		added = append(added, entry{route: r, methods: normalizeMethods(r.Methods), source: source})
	}
	a.entries = append(a.entries, added...)
	a.logger.Debug("router included", zap.String("source", source), zap.Int("routes", len(added)))
	return nil
}

func validateRoute(r Route) error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return errors.New("route name is required")
	case OperationID(r.Name) == "":
		return errors.New("route name must contain a letter or digit")
	case !strings.HasPrefix(r.Path, "/"):
		return fmt.Errorf("path %q must start with /", r.Path)
	case r.Handler == nil:
		return errors.New("route handler is required")
	}
	if err := mux.NewRouter().NewRoute().Path(r.Path).GetError(); err != nil {
		return fmt.Errorf("path %q: %w", r.Path, err)
	}
	return nil
}

// endpointPath replaces every path variable with {} so templates that differ
// only in variable names or patterns compare equal.
func endpointPath(p string) string {
	return pathVar.ReplaceAllString(p, "{}")
}

// Routes returns the public route table. It is populated by Finalize.
func (a *App) Routes() []RouteInfo {
	out := make([]RouteInfo, len(a.routes))
	copy(out, a.routes)
	return out
}

// Info returns the application metadata.
func (a *App) Info() Info {
	return a.info
}

// Check runs the post-pass over the merged route table: it assigns operation
// ids and verifies route-name, operation-id and (path, method) uniqueness
// across every source.
func (a *App) Check() ([]RouteInfo, error) {
	entries := append(a.entries[:len(a.entries):len(a.entries)], a.internalEntries()...)

	var (
		conflicts []Conflict
		names     = make(map[string]RouteInfo)
		opIDs     = make(map[string]RouteInfo)
		endpoints = make(map[string]RouteInfo)
		public    = make([]RouteInfo, 0, len(entries))
	)

	for _, e := range entries {
		info := RouteInfo{
			Name:        e.route.Name,
			OperationID: OperationID(e.route.Name),
			Path:        e.route.Path,
			Methods:     e.methods,
			Summary:     e.route.Summary,
			Description: e.route.Description,
			Tags:        e.route.Tags,
			Source:      e.source,
		}

		if !e.internal {
			if prev, ok := names[info.Name]; ok {
				conflicts = append(conflicts, Conflict{Kind: ConflictName, Key: info.Name, First: prev, Second: info})
			} else {
				names[info.Name] = info
				if prev, ok := opIDs[info.OperationID]; ok {
					conflicts = append(conflicts, Conflict{Kind: ConflictOperationID, Key: info.OperationID, First: prev, Second: info})
				} else {
					opIDs[info.OperationID] = info
				}
			}
		}

		for _, m := range info.Methods {
			key := m + " " + endpointPath(info.Path)
			if prev, ok := endpoints[key]; ok {
				conflicts = append(conflicts, Conflict{Kind: ConflictEndpoint, Key: key, First: prev, Second: info})
				continue
			}
			endpoints[key] = info
		}

		if !e.internal {
			public = append(public, info)
		}
	}

	if len(conflicts) > 0 {
		return nil, &RouteConflictError{Conflicts: conflicts}
	}
	return public, nil
}

// Finalize validates the route table and builds the HTTP handler. A
// *RouteConflictError means the application must not be served.
func (a *App) Finalize() (http.Handler, error) {
	if a.finalized {
		return nil, ErrFinalized
	}

	routes, err := a.Check()
	if err != nil {
		return nil, err
	}
	a.routes = routes
	a.finalized = true

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found", "no route matches the request path")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "route does not accept this method")
	})
	r.Use(a.metrics.middleware)

	all := append(a.entries[:len(a.entries):len(a.entries)], a.internalEntries()...)
	for _, e := range all {
		route := r.Methods(e.methods...).Path(e.route.Path).Name(OperationID(e.route.Name)).Handler(e.route.Handler)
		if err := route.GetError(); err != nil {
			a.finalized = false
			return nil, fmt.Errorf("route %q: %w", e.route.Name, err)
		}
	}

	for _, info := range routes {
		a.logger.Debug("route registered",
			zap.String("operation_id", info.OperationID),
			zap.String("path", info.Path),
			zap.Strings("methods", info.Methods),
			zap.String("source", info.Source),
		)
	}

	var root http.Handler = r
	root = corsMiddleware(a.cfg.corsOrigins, root)
	root = recoveryMiddleware(a.logger, root)
	if a.cfg.enableLogging {
		root = loggingMiddleware(a.logger, root)
	}
	root = rateLimitMiddleware(a.cfg.rateLimiter, root)
	root = requestIDMiddleware(root)

	return root, nil
}

// internalEntries are the framework endpoints (schema, docs, metrics). They
// take part in the (path, method) check but are left out of the schema.
func (a *App) internalEntries() []entry {
	var out []entry
	get := []string{http.MethodGet}
	if a.info.OpenAPIURL != "" {
		out = append(out, entry{
			route:    Route{Name: "openapi", Path: a.info.OpenAPIURL, Handler: http.HandlerFunc(a.handleOpenAPI)},
			methods:  get,
			source:   "tempo",
			internal: true,
		})
		if a.info.DocsURL != "" {
			out = append(out, entry{
				route:    Route{Name: "swagger_ui_html", Path: a.info.DocsURL, Handler: http.HandlerFunc(a.handleDocs)},
				methods:  get,
				source:   "tempo",
				internal: true,
			})
		}
	}
	if a.info.MetricsURL != "" {
		out = append(out, entry{
			route:    Route{Name: "metrics", Path: a.info.MetricsURL, Handler: a.metrics.handler()},
			methods:  get,
			source:   "tempo",
			internal: true,
		})
	}
	return out
}
