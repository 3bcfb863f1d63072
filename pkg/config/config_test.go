package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
	Inner struct {
		Flag bool `yaml:"flag"`
	} `yaml:"inner"`
}

type checked struct {
	Count int `yaml:"count"`
}

func (c *checked) Validate() error {
	if c.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, "count: 5\n")
	cfg := sample{Name: "default"}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "default" || cfg.Count != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_NAME", "from-env")
	path := writeConfig(t, "name: ${CONFIG_TEST_NAME}\n")
	var cfg sample
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "name: x\ninner:\n  flg: true\n")
	var cfg sample
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "flg") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	cfg := sample{Count: 7}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Count != 7 {
		t.Errorf("count = %d", cfg.Count)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeConfig(t, "count: -1\n")
	var cfg checked
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg sample
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestLoadOptional(t *testing.T) {
	t.Run("missing file keeps defaults", func(t *testing.T) {
		cfg := checked{Count: 3}
		loaded, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
		if err != nil || loaded {
			t.Fatalf("loaded=%v err=%v", loaded, err)
		}
		if cfg.Count != 3 {
			t.Errorf("count = %d", cfg.Count)
		}
	})

	t.Run("missing file still validates", func(t *testing.T) {
		cfg := checked{Count: -2}
		if _, err := LoadOptional("", &cfg); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("existing file", func(t *testing.T) {
		path := writeConfig(t, "count: 9\n")
		var cfg checked
		loaded, err := LoadOptional(path, &cfg)
		if err != nil || !loaded || cfg.Count != 9 {
			t.Fatalf("loaded=%v err=%v cfg=%+v", loaded, err, cfg)
		}
	})
}
