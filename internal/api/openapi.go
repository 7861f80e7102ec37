package api

import (
	"html/template"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

type openAPIDocument struct {
	OpenAPI string                                 `json:"openapi"`
	Info    openAPIInfo                            `json:"info"`
	Paths   map[string]map[string]openAPIOperation `json:"paths"`
}

type openAPIInfo struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version"`
	License     openAPILicense `json:"license"`
}

type openAPILicense struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type openAPIOperation struct {
	OperationID string                     `json:"operationId"`
	Summary     string                     `json:"summary,omitempty"`
	Description string                     `json:"description,omitempty"`
	Tags        []string                   `json:"tags,omitempty"`
	Parameters  []openAPIParameter         `json:"parameters,omitempty"`
	Responses   map[string]openAPIResponse `json:"responses"`
}

type openAPIParameter struct {
	Name     string            `json:"name"`
	In       string            `json:"in"`
	Required bool              `json:"required"`
	Schema   map[string]string `json:"schema"`
}

type openAPIResponse struct {
	Description string `json:"description"`
}

// pathVar matches mux path variables, with or without a pattern: {id} or {rest:.*}.
var pathVar = regexp.MustCompile(`\{([^{}:]+)(?::[^{}]*)?\}`)

// buildOpenAPI renders the public route table as an OpenAPI 3.1 document.
func buildOpenAPI(info Info, routes []RouteInfo) openAPIDocument {
	doc := openAPIDocument{
		OpenAPI: "3.1.0",
		Info: openAPIInfo{
			Title:       info.Title,
			Description: info.Description,
			Version:     info.Version,
			License: openAPILicense{
				Name: "Apache 2.0",
				URL:  "https://www.apache.org/licenses/LICENSE-2.0.html",
			},
		},
		Paths: make(map[string]map[string]openAPIOperation),
	}

	for _, r := range routes {
		path := pathVar.ReplaceAllString(r.Path, "{$1}")
		var params []openAPIParameter
		for _, m := range pathVar.FindAllStringSubmatch(r.Path, -1) {
			params = append(params, openAPIParameter{
				Name:     m[1],
				In:       "path",
				Required: true,
				Schema:   map[string]string{"type": "string"},
			})
		}

		ops := doc.Paths[path]
		if ops == nil {
			ops = make(map[string]openAPIOperation)
			doc.Paths[path] = ops
		}
		for _, method := range r.Methods {
			ops[strings.ToLower(method)] = openAPIOperation{
				OperationID: r.OperationID,
				Summary:     r.Summary,
				Description: r.Description,
				Tags:        r.Tags,
				Parameters:  params,
				Responses: map[string]openAPIResponse{
					"200": {Description: "Successful Response"},
				},
			}
		}
	}
	return doc
}

func (a *App) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, buildOpenAPI(a.info, a.routes))
}

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Title}} - Swagger UI</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: {{.OpenAPIURL}}, dom_id: "#swagger-ui"});
</script>
</body>
</html>
`))

func (a *App) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docsTemplate.Execute(w, a.info); err != nil {
		a.logger.Warn("render docs page", zap.Error(err))
	}
}
