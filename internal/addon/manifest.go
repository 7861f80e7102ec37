package addon

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoRouterFile means the addon directory has no router.yaml.
	ErrNoRouterFile = errors.New("no " + ManifestFile + " in addon directory")
	// ErrNotARouter means router.yaml does not define a router: a top-level
	// "router" mapping with a "routes" sequence.
	ErrNotARouter = errors.New(ManifestFile + " does not define a router")
)

// Manifest is the decoded router section of router.yaml.
type Manifest struct {
	Prefix string      `yaml:"prefix"`
	Tags   []string    `yaml:"tags"`
	Routes []RouteSpec `yaml:"routes"`
}

// RouteSpec declares one route. Exactly one handler kind must be set.
type RouteSpec struct {
	Name        string   `yaml:"name"`
	Path        string   `yaml:"path"`
	Methods     []string `yaml:"methods"`
	Summary     string   `yaml:"summary"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`

	Response *ResponseSpec `yaml:"response"`
	File     string        `yaml:"file"`
	Redirect *RedirectSpec `yaml:"redirect"`
	Proxy    string        `yaml:"proxy"`
	SQL      string        `yaml:"sql"`
}

// ResponseSpec is a static response. JSON takes precedence over Body.
type ResponseSpec struct {
	Status      int               `yaml:"status"`
	JSON        any               `yaml:"json"`
	Body        string            `yaml:"body"`
	ContentType string            `yaml:"content_type"`
	Headers     map[string]string `yaml:"headers"`
}

// RedirectSpec sends the client elsewhere.
type RedirectSpec struct {
	URL    string `yaml:"url"`
	Status int    `yaml:"status"`
}

// kind returns the single handler kind configured on the route.
func (r RouteSpec) kind() (string, error) {
	var kinds []string
	if r.Response != nil {
		kinds = append(kinds, "response")
	}
	if r.File != "" {
		kinds = append(kinds, "file")
	}
	if r.Redirect != nil {
		kinds = append(kinds, "redirect")
	}
	if r.Proxy != "" {
		kinds = append(kinds, "proxy")
	}
	if strings.TrimSpace(r.SQL) != "" {
		kinds = append(kinds, "sql")
	}
	switch len(kinds) {
	case 0:
		return "", errors.New("no handler: set one of response, file, redirect, proxy, sql")
	case 1:
		return kinds[0], nil
	default:
		return "", fmt.Errorf("more than one handler: %s", strings.Join(kinds, ", "))
	}
}

// ReadManifest reads and decodes path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	return DecodeManifest(data)
}

// DecodeManifest decodes a router.yaml document. The shape check happens
// before typed decoding so that any document lacking a router mapping with a
// routes sequence reports ErrNotARouter.
func DecodeManifest(data []byte) (Manifest, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, ErrNotARouter
		}
		return Manifest{}, fmt.Errorf("decode %s: %w", ManifestFile, err)
	}

	router := mappingValue(&doc, "router")
	if router == nil || router.Kind != yaml.MappingNode {
		return Manifest{}, ErrNotARouter
	}
	routes := mappingValue(router, "routes")
	if routes == nil || routes.Kind != yaml.SequenceNode {
		return Manifest{}, ErrNotARouter
	}

	var m Manifest
	if err := router.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode %s: %w", ManifestFile, err)
	}
	return m, nil
}

// mappingValue returns the value node for key in a mapping node, unwrapping
// the document node.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
