// Package testutil provides testing utilities for stockroom tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// IsolateConfig points XDG_CONFIG_HOME at a temporary directory and resets
// viper, so a test neither reads nor writes the user's configuration.
// Viper is reset again when the test completes. Returns the temporary
// config home.
func IsolateConfig(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

// WriteManifest writes a shipment manifest listing items to dir/name and
// returns its path. An empty id omits the id field.
func WriteManifest(t *testing.T, dir, name, id string, items ...string) string {
	t.Helper()

	var sb strings.Builder
	if id != "" {
		sb.WriteString("id: " + id + "\n")
	}
	sb.WriteString("items: [" + strings.Join(items, ", ") + "]\n")

	return WriteFile(t, dir, name, sb.String())
}

// WriteFile writes content to dir/name, creating parent directories, and
// returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", name, err)
	}
	return path
}

// Eventually polls cond every 10ms until it returns true, failing the test
// if timeout elapses first.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
