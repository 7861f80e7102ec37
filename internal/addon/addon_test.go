package addon

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mart337i/Tempo/internal/api"
	"github.com/mart337i/Tempo/internal/database"
)

func writeAddon(t *testing.T, root, name, manifest string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644))
	}
	return dir
}

func newApp(t *testing.T) *api.App {
	t.Helper()
	return api.New(api.Info{Title: "test"}, zaptest.NewLogger(t), api.WithLogging(false))
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

const routeX = `
router:
  routes:
    - name: x
      path: /x
      response:
        body: from a
`

func TestDiscoverAndRegisterSkipsBrokenAddons(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "a", routeX)
	writeAddon(t, root, "b", "")
	writeAddon(t, root, "_hidden", "this is: [not yaml")
	writeAddon(t, root, "c", "router:\n  - not\n  - a mapping\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("docs"), 0o644))

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	descriptors, err := Discover(root, logger)
	require.NoError(t, err)

	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	app := newApp(t)
	report := RegisterAll(app, descriptors, Deps{Logger: logger})

	assert.Equal(t, []string{"a"}, report.Registered)
	assert.Equal(t, 1, report.Routes)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, "b", report.Skipped[0].Name)
	assert.Contains(t, report.Skipped[0].Reason, ManifestFile)
	assert.Equal(t, "c", report.Skipped[1].Name)
	assert.Equal(t, ErrNotARouter.Error(), report.Skipped[1].Reason)

	skipped := logs.FilterMessage("skipping addon")
	require.Equal(t, 2, skipped.Len())
	for _, entry := range skipped.All() {
		assert.NotEmpty(t, entry.ContextMap()["reason"])
	}
	for _, entry := range logs.All() {
		if entry.Message == "ignoring private addon directory" {
			continue
		}
		assert.NotEqual(t, "_hidden", entry.ContextMap()["addon"], "unexpected log %q", entry.Message)
	}

	handler, err := app.Finalize()
	require.NoError(t, err)
	rec := get(t, handler, "/x")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from a", rec.Body.String())

	var sources []string
	for _, r := range app.Routes() {
		sources = append(sources, r.Source+":"+r.Name)
	}
	assert.Equal(t, []string{"tempo:health", "a:x"}, sources)
}

func TestDuplicateRouteNamesAcrossAddonsAreFatal(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "orders", "router:\n  routes:\n    - {name: list, path: /orders, response: {json: []}}\n")
	writeAddon(t, root, "users", "router:\n  routes:\n    - {name: list, path: /users, response: {json: []}}\n")

	descriptors, err := Discover(root, zaptest.NewLogger(t))
	require.NoError(t, err)

	app := newApp(t)
	report := RegisterAll(app, descriptors, Deps{Logger: zaptest.NewLogger(t)})
	require.Equal(t, []string{"orders", "users"}, report.Registered)

	handler, err := app.Finalize()
	assert.Nil(t, handler)

	var conflictErr *api.RouteConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, api.ConflictName, conflictErr.Conflicts[0].Kind)
	assert.Equal(t, "list", conflictErr.Conflicts[0].Key)
	assert.Contains(t, err.Error(), `"list"`)
}

func TestDiscoverMissingRoot(t *testing.T) {
	descriptors, err := Discover(filepath.Join(t.TempDir(), "nope"), zaptest.NewLogger(t))
	assert.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestDiscoverIgnoresDotDirectories(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, ".git", routeX)
	writeAddon(t, root, "real", routeX)

	descriptors, err := Discover(root, nil)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "real", descriptors[0].Name)
	assert.True(t, descriptors[0].HasRouter)
}

func TestDecodeManifestShapes(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no router":      "routes: []\n",
		"router scalar":  "router: yes\n",
		"no routes":      "router:\n  prefix: /x\n",
		"routes mapping": "router:\n  routes:\n    a: b\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeManifest([]byte(doc))
			assert.ErrorIs(t, err, ErrNotARouter)
		})
	}

	_, err := DecodeManifest([]byte("router: [unterminated"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotARouter))

	m, err := DecodeManifest([]byte("router:\n  routes: []\n"))
	require.NoError(t, err)
	assert.Empty(t, m.Routes)
}

func TestLoadRejectsRouteWithoutSingleHandler(t *testing.T) {
	root := t.TempDir()
	dir := writeAddon(t, root, "bad", "router:\n  routes:\n    - {name: a, path: /a}\n")
	_, err := Load(Descriptor{Name: "bad", Dir: dir, HasRouter: true}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler")

	dir = writeAddon(t, root, "both", "router:\n  routes:\n    - {name: a, path: /a, proxy: 'http://x', sql: 'SELECT 1'}\n")
	_, err = Load(Descriptor{Name: "both", Dir: dir, HasRouter: true}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy, sql")
}

func TestLoadAppliesPrefixAndTags(t *testing.T) {
	dir := writeAddon(t, t.TempDir(), "inv", `
router:
  prefix: /inventory
  tags: [inventory]
  routes:
    - name: ping
      path: /ping
      methods: [get, head]
      tags: [health, inventory]
      response:
        status: 201
        json: {pong: true}
        headers: {X-Addon: inv}
`)
	r, err := Load(Descriptor{Name: "inv", Dir: dir, HasRouter: true}, Deps{})
	require.NoError(t, err)
	require.Len(t, r.Routes(), 1)

	route := r.Routes()[0]
	assert.Equal(t, "/inventory/ping", route.Path)
	assert.Equal(t, []string{"inventory", "health"}, route.Tags)

	rec := get(t, route.Handler, "/inventory/ping")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "inv", rec.Header().Get("X-Addon"))
	assert.JSONEq(t, `{"pong": true}`, rec.Body.String())
}

func TestFileHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644))

	h, err := fileHandler(dir, "hello.txt")
	require.NoError(t, err)
	rec := get(t, h, "/hello")
	assert.Equal(t, "hello", rec.Body.String())

	_, err = fileHandler(dir, "../secret")
	assert.ErrorContains(t, err, "escapes")
	_, err = fileHandler(dir, "/etc/passwd")
	assert.Error(t, err)
	_, err = fileHandler(dir, "missing.txt")
	assert.Error(t, err)
}

func TestRedirectHandler(t *testing.T) {
	h, err := redirectHandler(RedirectSpec{URL: "https://example.com/docs"})
	require.NoError(t, err)
	rec := get(t, h, "/old")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://example.com/docs", rec.Header().Get("Location"))

	_, err = redirectHandler(RedirectSpec{URL: "/x", Status: 200})
	assert.Error(t, err)
	_, err = redirectHandler(RedirectSpec{})
	assert.Error(t, err)
}

func TestProxyHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream "+r.URL.Path)
	}))
	t.Cleanup(upstream.Close)

	h, err := proxyHandler(upstream.URL, zaptest.NewLogger(t))
	require.NoError(t, err)
	rec := get(t, h, "/weather")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream /weather", rec.Body.String())

	_, err = proxyHandler("not-a-url", zap.NewNop())
	assert.Error(t, err)
}

func TestProxyHandlerUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	h, err := proxyHandler(target, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, get(t, h, "/x").Code)
}

const sqlAddon = `
router:
  routes:
    - name: get_item
      path: /items/{id}
      sql: SELECT name FROM items WHERE id = :id
`

func TestSQLRouteWithoutDatabase(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "items", sqlAddon)
	descriptors, err := Discover(root, nil)
	require.NoError(t, err)

	app := newApp(t)
	report := RegisterAll(app, descriptors, Deps{DB: &database.DB{}})
	require.Equal(t, []string{"items"}, report.Registered)

	handler, err := app.Finalize()
	require.NoError(t, err)
	rec := get(t, handler, "/items/7")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Database not configured")
}

func TestSQLRouteBindsPathVariables(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM items WHERE id = $1")).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("washer"))

	root := t.TempDir()
	writeAddon(t, root, "items", sqlAddon)
	descriptors, err := Discover(root, nil)
	require.NoError(t, err)

	app := newApp(t)
	deps := Deps{DB: database.NewWithDB(sqlx.NewDb(raw, "postgres"), nil), Logger: zaptest.NewLogger(t)}
	RegisterAll(app, descriptors, deps)

	handler, err := app.Finalize()
	require.NoError(t, err)
	rec := get(t, handler, "/items/7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name": "washer"}]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

type panickingIncluder struct{}

func (panickingIncluder) IncludeRouter(api.RouteCollection, string) error {
	panic("boom")
}

type recordingIncluder struct{ sources []string }

func (r *recordingIncluder) IncludeRouter(_ api.RouteCollection, source string) error {
	r.sources = append(r.sources, source)
	return nil
}

func TestRegisterAllRecoversFromPanics(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "a", routeX)
	descriptors, err := Discover(root, nil)
	require.NoError(t, err)

	report := RegisterAll(panickingIncluder{}, descriptors, Deps{})
	assert.Empty(t, report.Registered)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "boom")
}

func TestMalformedPathTemplateSkipsAddon(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "bad", "router:\n  routes:\n    - name: item\n      path: \"/items/{id\"\n      response:\n        body: never\n")
	writeAddon(t, root, "good", routeX)
	descriptors, err := Discover(root, nil)
	require.NoError(t, err)

	app := newApp(t)
	report := RegisterAll(app, descriptors, Deps{Logger: zaptest.NewLogger(t)})
	assert.Equal(t, []string{"good"}, report.Registered)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "bad", report.Skipped[0].Name)
	assert.Contains(t, report.Skipped[0].Reason, "/items/{id")

	handler, err := app.Finalize()
	require.NoError(t, err)
	for _, r := range app.Routes() {
		assert.NotEqual(t, "item", r.Name)
	}
	assert.Equal(t, http.StatusOK, get(t, handler, "/x").Code)
}

func TestRegisterAllContinuesAfterFailure(t *testing.T) {
	root := t.TempDir()
	writeAddon(t, root, "a", "router: nope\n")
	writeAddon(t, root, "b", routeX)
	writeAddon(t, root, "c", routeX)
	descriptors, err := Discover(root, nil)
	require.NoError(t, err)

	inc := &recordingIncluder{}
	report := RegisterAll(inc, descriptors, Deps{})
	assert.Equal(t, []string{"b", "c"}, inc.sources)
	assert.Equal(t, []string{"b", "c"}, report.Registered)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "a", report.Skipped[0].Name)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/x", joinPath("", "/x"))
	assert.Equal(t, "/x", joinPath("/", "/x"))
	assert.Equal(t, "/api/x", joinPath("/api", "/x"))
	assert.Equal(t, "/api/x/", joinPath("api/", "/x/"))
	assert.Equal(t, "/api/{id}", joinPath("/api", "{id}"))
}
