package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap/zaptest"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

func newTestApp(t *testing.T, info Info) *App {
	t.Helper()
	return New(info, zaptest.NewLogger(t), WithLogging(false))
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOperationID(t *testing.T) {
	cases := map[string]string{
		"list":          "list",
		"List Items":    "list_items",
		"get-item--v2":  "get_item_v2",
		"  _private_  ": "private",
		"!!!":           "",
	}
	for in, want := range cases {
		if got := OperationID(in); got != want {
			t.Fatalf("OperationID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMethods(t *testing.T) {
	got := normalizeMethods([]string{"post", " get", "POST"})
	if strings.Join(got, ",") != "GET,POST" {
		t.Fatalf("unexpected methods %v", got)
	}
	if got := normalizeMethods(nil); len(got) != 1 || got[0] != http.MethodGet {
		t.Fatalf("expected GET default, got %v", got)
	}
}

func TestIncludeRouterServesRoutes(t *testing.T) {
	app := newTestApp(t, Info{Title: "t"})
	err := app.IncludeRouter(RouteList{
		{Name: "list_items", Path: "/items", Methods: []string{"get"}, Handler: okHandler("items")},
		{Name: "get_item", Path: "/items/{id}", Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "item "+mux.Vars(r)["id"])
		})},
	}, "inventory")
	if err != nil {
		t.Fatalf("IncludeRouter returned error: %v", err)
	}

	handler, err := app.Finalize()
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}

	if rec := serve(t, handler, http.MethodGet, "/items"); rec.Code != http.StatusOK || rec.Body.String() != "items" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(t, handler, http.MethodGet, "/items/42"); rec.Body.String() != "item 42" {
		t.Fatalf("expected path variable, got %q", rec.Body.String())
	}
	if rec := serve(t, handler, http.MethodDelete, "/items"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := serve(t, handler, http.MethodGet, "/missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	routes := app.Routes()
	if len(routes) != 3 {
		t.Fatalf("expected health plus two routes, got %d", len(routes))
	}
	if routes[1].OperationID != "list_items" || routes[1].Source != "inventory" {
		t.Fatalf("unexpected route info %+v", routes[1])
	}
}

func TestIncludeRouterRejectsInvalidRoutes(t *testing.T) {
	cases := []Route{
		{Name: "", Path: "/a", Handler: okHandler("")},
		{Name: "???", Path: "/a", Handler: okHandler("")},
		{Name: "a", Path: "a", Handler: okHandler("")},
		{Name: "a", Path: "/a"},
		{Name: "a", Path: "/items/{id", Handler: okHandler("")},
		{Name: "a", Path: "/items/{id:[0-9}", Handler: okHandler("")},
	}
	for _, r := range cases {
		app := newTestApp(t, Info{})
		if err := app.IncludeRouter(RouteList{r}, "x"); err == nil {
			t.Fatalf("expected error for %+v", r)
		}
	}
}

func TestIncludeRouterAfterFinalize(t *testing.T) {
	app := newTestApp(t, Info{})
	if _, err := app.Finalize(); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	err := app.IncludeRouter(RouteList{{Name: "a", Path: "/a", Handler: okHandler("")}}, "x")
	if !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}

func TestFinalizeDetectsDuplicateNamesAcrossSources(t *testing.T) {
	app := newTestApp(t, Info{})
	_ = app.IncludeRouter(RouteList{{Name: "list", Path: "/a", Handler: okHandler("a")}}, "a")
	_ = app.IncludeRouter(RouteList{{Name: "list", Path: "/b", Handler: okHandler("b")}}, "b")

	handler, err := app.Finalize()
	if handler != nil {
		t.Fatalf("expected no handler on conflict")
	}
	var conflictErr *RouteConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected RouteConflictError, got %v", err)
	}
	if len(conflictErr.Conflicts) != 1 || conflictErr.Conflicts[0].Kind != ConflictName || conflictErr.Conflicts[0].Key != "list" {
		t.Fatalf("unexpected conflicts %+v", conflictErr.Conflicts)
	}
	if !strings.Contains(err.Error(), `"list"`) {
		t.Fatalf("expected error to name the duplicate, got %q", err)
	}
}

func TestFinalizeDetectsDuplicateEndpoints(t *testing.T) {
	app := newTestApp(t, Info{})
	_ = app.IncludeRouter(RouteList{{Name: "first", Path: "/x", Methods: []string{"GET", "POST"}, Handler: okHandler("")}}, "a")
	_ = app.IncludeRouter(RouteList{{Name: "second", Path: "/x", Methods: []string{"post"}, Handler: okHandler("")}}, "b")

	_, err := app.Finalize()
	var conflictErr *RouteConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected RouteConflictError, got %v", err)
	}
	if conflictErr.Conflicts[0].Kind != ConflictEndpoint || conflictErr.Conflicts[0].Key != "POST /x" {
		t.Fatalf("unexpected conflict %+v", conflictErr.Conflicts[0])
	}
}

func TestFinalizeDetectsEndpointsDifferingOnlyInVariables(t *testing.T) {
	app := newTestApp(t, Info{})
	_ = app.IncludeRouter(RouteList{{Name: "by_id", Path: "/items/{id}", Handler: okHandler("")}}, "a")
	_ = app.IncludeRouter(RouteList{{Name: "by_key", Path: "/items/{key:[0-9]+}", Handler: okHandler("")}}, "b")

	_, err := app.Finalize()
	var conflictErr *RouteConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected RouteConflictError, got %v", err)
	}
	if conflictErr.Conflicts[0].Kind != ConflictEndpoint || conflictErr.Conflicts[0].Key != "GET /items/{}" {
		t.Fatalf("unexpected conflict %+v", conflictErr.Conflicts[0])
	}
}

func TestFinalizeAllowsSamePathWithDisjointMethods(t *testing.T) {
	app := newTestApp(t, Info{})
	_ = app.IncludeRouter(RouteList{
		{Name: "read", Path: "/x", Handler: okHandler("read")},
		{Name: "write", Path: "/x", Methods: []string{"PUT"}, Handler: okHandler("write")},
	}, "a")

	handler, err := app.Finalize()
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if rec := serve(t, handler, http.MethodPut, "/x"); rec.Body.String() != "write" {
		t.Fatalf("expected PUT route, got %q", rec.Body.String())
	}
}

func TestFinalizeDetectsOperationIDCollision(t *testing.T) {
	app := newTestApp(t, Info{})
	_ = app.IncludeRouter(RouteList{
		{Name: "list-items", Path: "/a", Handler: okHandler("")},
		{Name: "list_items", Path: "/b", Handler: okHandler("")},
	}, "a")

	_, err := app.Finalize()
	var conflictErr *RouteConflictError
	if !errors.As(err, &conflictErr) || conflictErr.Conflicts[0].Kind != ConflictOperationID {
		t.Fatalf("expected operation id conflict, got %v", err)
	}
}

func TestFinalizeDetectsCollisionWithFrameworkEndpoints(t *testing.T) {
	app := newTestApp(t, Info{OpenAPIURL: "/openapi.json"})
	_ = app.IncludeRouter(RouteList{{Name: "schema", Path: "/openapi.json", Handler: okHandler("")}}, "a")

	if _, err := app.Finalize(); err == nil {
		t.Fatalf("expected conflict with the schema endpoint")
	}
}

func TestFinalizeTwice(t *testing.T) {
	app := newTestApp(t, Info{})
	if _, err := app.Finalize(); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if _, err := app.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	app := New(Info{}, zaptest.NewLogger(t), WithLogging(false), WithClock(func() time.Time { return now }))
	handler, err := app.Finalize()
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}

	rec := serve(t, handler, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "ok" || !body.Timestamp.Equal(now) {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestMetricsEndpointCountsByOperation(t *testing.T) {
	app := newTestApp(t, Info{MetricsURL: "/metrics"})
	_ = app.IncludeRouter(RouteList{{Name: "List Items", Path: "/items", Handler: okHandler("")}}, "a")
	handler, err := app.Finalize()
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}

	serve(t, handler, http.MethodGet, "/items")
	rec := serve(t, handler, http.MethodGet, "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics to be served, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `tempo_http_requests_total{method="GET",operation="list_items",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestDisabledFrameworkEndpoints(t *testing.T) {
	handler := newTestHandler(t, WithLogging(false))

	for _, path := range []string{"/openapi.json", "/docs", "/metrics"} {
		if rec := serve(t, handler, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Fatalf("expected %s to be disabled, got %d", path, rec.Code)
		}
	}
}
