package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	Name    string         `yaml:"name"`
	Timeout time.Duration  `yaml:"timeout"`
	Extra   map[string]any `yaml:"extra"`
}

func (c *testConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SHELFCHECK_TEST_TOKEN", "abc")
	path := writeFile(t, "name: test\ntimeout: 3s\nextra:\n  token: ${SHELFCHECK_TEST_TOKEN}\n  paths: [/a, /b]\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
	if cfg.Extra["token"] != "abc" {
		t.Errorf("token = %v", cfg.Extra["token"])
	}
	if paths, ok := cfg.Extra["paths"].([]any); !ok || len(paths) != 2 {
		t.Errorf("paths = %#v", cfg.Extra["paths"])
	}
}

func TestLoadValidates(t *testing.T) {
	path := writeFile(t, "timeout: 1s\n")
	var cfg testConfig
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg := testConfig{Name: "defaults"}
	if err := LoadOptional(missing, &cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Name != "defaults" {
		t.Errorf("name = %q", cfg.Name)
	}

	var empty testConfig
	if err := LoadOptional(missing, &empty); err == nil {
		t.Error("defaults should still be validated")
	}

	path := writeFile(t, "name: from-file\n")
	if err := LoadOptional(path, &cfg); err != nil || cfg.Name != "from-file" {
		t.Errorf("cfg = %+v, err = %v", cfg, err)
	}
}
