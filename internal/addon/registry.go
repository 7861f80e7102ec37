package addon

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/mart337i/Tempo/internal/api"
	"github.com/mart337i/Tempo/internal/database"
)

// Deps are the shared resources handed to addon handlers.
type Deps struct {
	DB     *database.DB
	Logger *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// Includer is the application's route-inclusion mechanism.
type Includer interface {
	IncludeRouter(rc api.RouteCollection, source string) error
}

// Router is a loaded addon. It implements api.RouteCollection.
type Router struct {
	Name   string
	routes []api.Route
}

// Routes implements api.RouteCollection.
func (r *Router) Routes() []api.Route {
	return r.routes
}

// Load decodes the addon's manifest and builds its handlers.
func Load(d Descriptor, deps Deps) (*Router, error) {
	deps = deps.withDefaults()
	if !d.HasRouter {
		return nil, ErrNoRouterFile
	}

	m, err := ReadManifest(d.Manifest())
	if err != nil {
		return nil, err
	}

	r := &Router{Name: d.Name, routes: make([]api.Route, 0, len(m.Routes))}
	for i, spec := range m.Routes {
		h, err := buildHandler(spec, d.Dir, deps)
		if err != nil {
			return nil, fmt.Errorf("route %d (%q): %w", i, spec.Name, err)
		}
		r.routes = append(r.routes, api.Route{
			Name:        spec.Name,
			Path:        joinPath(m.Prefix, spec.Path),
			Methods:     spec.Methods,
			Summary:     spec.Summary,
			Description: spec.Description,
			Tags:        mergeTags(m.Tags, spec.Tags),
			Handler:     h,
		})
	}
	return r, nil
}

func joinPath(prefix, p string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return p
	}
	joined := path.Join("/", prefix, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

func mergeTags(base, extra []string) []string {
	out := slices.Clone(base)
	for _, t := range extra {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Skipped records an addon that was not registered.
type Skipped struct {
	Name   string
	Reason string
}

// Report summarises a RegisterAll run.
type Report struct {
	Registered []string
	Skipped    []Skipped
	Routes     int
}

// RegisterAll loads every descriptor and includes its router in app. Any
// failure, including a panic, skips that addon and registration continues
// with the next one. Route uniqueness is not checked here; the application
// checks the merged table once after all addons are included.
func RegisterAll(app Includer, descriptors []Descriptor, deps Deps) Report {
	deps = deps.withDefaults()
	var report Report
	for _, d := range descriptors {
		n, err := register(app, d, deps)
		if err != nil {
			deps.Logger.Warn("skipping addon",
				zap.String("addon", d.Name),
				zap.String("dir", d.Dir),
				zap.String("reason", err.Error()),
			)
			report.Skipped = append(report.Skipped, Skipped{Name: d.Name, Reason: err.Error()})
			continue
		}
		deps.Logger.Info("addon registered", zap.String("addon", d.Name), zap.Int("routes", n))
		report.Registered = append(report.Registered, d.Name)
		report.Routes += n
	}
	return report
}

func register(app Includer, d Descriptor, deps Deps) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while registering: %v", rec)
		}
	}()

	r, err := Load(d, deps)
	if err != nil {
		return 0, err
	}
	if err := app.IncludeRouter(r, d.Name); err != nil {
		return 0, fmt.Errorf("include router: %w", err)
	}
	return len(r.routes), nil
}
