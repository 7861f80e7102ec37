package supervisor

import (
	"os"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newWatcher(t *testing.T) *fsnotify.Watcher {
	t.Helper()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	return len(entries)
}

func waitForFiles(t *testing.T, dir string, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if countFiles(t, dir) >= n {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d files in %s, got %d", n, dir, countFiles(t, dir))
}

// helperOptions re-executes the test binary as a worker running
// TestHelperWorker.
func helperOptions(dir, mode string) Options {
	return Options{
		Executable:  os.Args[0],
		Args:        []string{"-test.run=^TestHelperWorker$"},
		Env:         []string{"TEMPO_HELPER_WORKER=1", "TEMPO_HELPER_DIR=" + dir, "TEMPO_HELPER_MODE=" + mode},
		GracePeriod: 5 * time.Second,
		Debounce:    50 * time.Millisecond,
	}
}
