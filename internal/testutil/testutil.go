// Package testutil provides shared test helpers for libraries, credential
// databases and asynchronous assertions.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// TestDBPath returns a path for a temporary SQLite database that is removed
// when the test ends.
func TestDBPath(t *testing.T) string {
	t.Helper()
	dbFile, err := os.CreateTemp("", "shelfcheck-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	return dbFile.Name()
}

// TestLibrary creates an in-memory filesystem holding the given files. Paths
// ending in "/" create directories.
func TestLibrary(t *testing.T, paths ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, p := range paths {
		if p[len(p)-1] == '/' {
			if err := fs.MkdirAll(filepath.Clean(p), 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// Year returns a pointer to y.
func Year(y int) *int { return &y }
