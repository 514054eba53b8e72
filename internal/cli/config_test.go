package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/imgembed/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, `
[images]
scale = 2
fallback_format = "jpg"
cache_enabled = false
fetch_timeout = "5s"
exempt_crop_types = ["gantt", "timeline"]

[cache]
store = "redis"
url = "redis://localhost:6379/1"

[serve]
addr = ":9000"
`)

	cfg, undecoded, err := readConfig(path)
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if len(undecoded) != 0 {
		t.Errorf("undecoded = %v", undecoded)
	}
	img := cfg.Images
	if img.Scale != 2 || img.FallbackFormat != "jpg" || img.CacheEnabled() {
		t.Errorf("images = %+v", img)
	}
	if img.FetchTimeout != 5*time.Second {
		t.Errorf("fetch_timeout = %v, want 5s", img.FetchTimeout)
	}
	if len(img.ExemptCropTypes) != 2 {
		t.Errorf("exempt_crop_types = %v", img.ExemptCropTypes)
	}
	if cfg.Cache.Store != StoreRedis || cfg.Cache.URL != "redis://localhost:6379/1" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Serve.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Serve.Addr)
	}
}

func TestReadConfigDefaults(t *testing.T) {
	cfg, _, err := readConfig(writeConfig(t, "[images]\nscale = 4\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Store != StoreFile || cfg.Serve.Addr != defaultAddr {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestReadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code errors.Code
	}{
		{"missing", filepath.Join(t.TempDir(), "nope.toml"), errors.ErrCodeNotFound},
		{"malformed", writeConfig(t, "[images\nscale = "), errors.ErrCodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readConfig(tt.path)
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestLoadConfigWarnsOnUnknownKeys(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, log.InfoLevel)
	c.configPath = writeConfig(t, "[images]\nscal = 2\n")

	if _, err := c.loadConfig(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "images.scal") {
		t.Errorf("expected warning about images.scal, got %q", buf.String())
	}
}

func TestLoadConfigMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	c := New(&bytes.Buffer{}, log.InfoLevel)

	cfg, err := c.loadConfig()
	if err != nil {
		t.Fatalf("missing default config should not fail: %v", err)
	}
	if cfg.Cache.Store != StoreFile {
		t.Errorf("store = %q", cfg.Cache.Store)
	}

	c.configPath = filepath.Join(t.TempDir(), "absent.toml")
	if _, err := c.loadConfig(); err == nil {
		t.Error("explicit missing config should fail")
	}
}

func TestImageFlagsOverride(t *testing.T) {
	var f imageFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.Flags().Parse([]string{"--scale", "1.5", "--no-cache", "--base-dir", "/srv/docs"}); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := readConfig(writeConfig(t, "[images]\nscale = 2\nfallback_format = \"gif\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts := f.options(cmd, cfg.Images)

	if opts.Scale != 1.5 {
		t.Errorf("scale = %v, flag should win", opts.Scale)
	}
	if opts.FallbackFormat != "gif" {
		t.Errorf("format = %q, unset flag should keep file value", opts.FallbackFormat)
	}
	if opts.CacheEnabled() {
		t.Error("--no-cache should disable caching")
	}
	if opts.BaseDir != "/srv/docs" {
		t.Errorf("base dir = %q", opts.BaseDir)
	}
}

func TestImageFlagsBaseDirDefaultsToWorkingDir(t *testing.T) {
	var f imageFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)

	opts := f.options(cmd, defaultConfig().Images)
	wd, _ := os.Getwd()
	if opts.BaseDir != wd {
		t.Errorf("base dir = %q, want %q", opts.BaseDir, wd)
	}
}
