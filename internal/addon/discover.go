package addon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ManifestFile is the router-definition file an addon directory must contain.
const ManifestFile = "router.yaml"

// Descriptor is one visible directory under the addons root.
type Descriptor struct {
	Name      string
	Dir       string
	HasRouter bool
}

// Manifest returns the path of the addon's router.yaml.
func (d Descriptor) Manifest() string {
	return filepath.Join(d.Dir, ManifestFile)
}

// Discover lists the immediate subdirectories of root in lexicographic order.
// Hidden ("." prefix) and private ("_" prefix) names are skipped without being
// opened. A missing root yields no descriptors and no error.
func Discover(root string, logger *zap.Logger) ([]Descriptor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("addons directory not found", zap.String("path", root))
			return nil, nil
		}
		return nil, fmt.Errorf("read addons directory: %w", err)
	}

	var out []Descriptor
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			logger.Debug("ignoring private addon directory", zap.String("addon", name))
			continue
		}

		dir := filepath.Join(root, name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}

		d := Descriptor{Name: name, Dir: dir}
		if st, err := os.Stat(d.Manifest()); err == nil && st.Mode().IsRegular() {
			d.HasRouter = true
		}
		out = append(out, d)
	}

	logger.Debug("addons discovered", zap.String("path", root), zap.Int("count", len(out)))
	return out, nil
}
