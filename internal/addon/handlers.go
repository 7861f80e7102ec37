package addon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mart337i/Tempo/internal/api"
	"github.com/mart337i/Tempo/internal/database"
)

func buildHandler(spec RouteSpec, dir string, deps Deps) (http.Handler, error) {
	kind, err := spec.kind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case "response":
		return responseHandler(*spec.Response)
	case "file":
		return fileHandler(dir, spec.File)
	case "redirect":
		return redirectHandler(*spec.Redirect)
	case "proxy":
		return proxyHandler(spec.Proxy, deps.Logger)
	default:
		return sqlHandler(spec.SQL, deps), nil
	}
}

func responseHandler(spec ResponseSpec) (http.Handler, error) {
	status := spec.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 100 || status > 599 {
		return nil, fmt.Errorf("invalid response status %d", status)
	}

	body := []byte(spec.Body)
	contentType := spec.ContentType
	if spec.JSON != nil {
		encoded, err := json.Marshal(spec.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		body = append(encoded, '\n')
		if contentType == "" {
			contentType = "application/json"
		}
	}
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range spec.Headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}), nil
}

func fileHandler(dir, name string) (http.Handler, error) {
	if filepath.IsAbs(name) {
		return nil, fmt.Errorf("file %q must be relative to the addon directory", name)
	}
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("file %q escapes the addon directory", name)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file %q: %w", name, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("file %q is a directory", name)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}), nil
}

func redirectHandler(spec RedirectSpec) (http.Handler, error) {
	if spec.URL == "" {
		return nil, errors.New("redirect url is required")
	}
	status := spec.Status
	if status == 0 {
		status = http.StatusTemporaryRedirect
	}
	if status < 300 || status > 399 {
		return nil, fmt.Errorf("redirect status must be 3xx, got %d", status)
	}
	return http.RedirectHandler(spec.URL, status), nil
}

func proxyHandler(upstream string, logger *zap.Logger) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("proxy url %q must be an absolute http(s) url", upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy request failed",
			zap.String("upstream", target.String()),
			zap.String("path", r.URL.Path),
			zap.String("request_id", api.RequestID(r.Context())),
			zap.Error(err),
		)
		api.WriteError(w, http.StatusBadGateway, "Bad gateway", "upstream request failed")
	}
	return proxy, nil
}

// sqlHandler runs query with route variables and query-string values bound as
// named parameters; route variables win over the query string.
func sqlHandler(query string, deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !deps.DB.IsConfigured() {
			api.WriteError(w, http.StatusServiceUnavailable, "Database not configured",
				database.ErrNotConfigured.Error())
			return
		}

		params := make(map[string]any)
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		for k, v := range mux.Vars(r) {
			params[k] = v
		}

		rows, err := deps.DB.NamedQueryMaps(r.Context(), query, params)
		if err != nil {
			deps.Logger.Error("addon query failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", api.RequestID(r.Context())),
				zap.Error(err),
			)
			api.WriteError(w, http.StatusInternalServerError, "Query failed", "the database query could not be executed")
			return
		}
		api.WriteJSON(w, http.StatusOK, rows)
	})
}
