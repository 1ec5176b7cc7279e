package blogdesk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/blogdesk/logging"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Addr)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "data/blogdesk.db", cfg.DataPath)
	assert.Equal(t, int64(8<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeoutDuration())
	assert.Equal(t, 5, cfg.Pagination.DefaultPageSize)
	assert.Equal(t, logging.LevelInfo, cfg.Logging.Level)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blogdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "file"
max_upload = "2MB"
max_image_width = 800

[pagination]
default_page_size = 10

[logging]
format = "json"
`), 0o644))
	t.Setenv(EnvAddr, ":8080")
	t.Setenv(EnvCookieSecure, "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, "data/blogdesk.json", cfg.DataPath)
	assert.Equal(t, int64(2<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 800, cfg.MaxImageWidth)
	assert.Equal(t, 10, cfg.Pagination.DefaultPageSize)
	assert.Equal(t, logging.FormatJSON, cfg.Logging.Format)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "unknown backend", body: `backend = "redis"`},
		{name: "bad upload size", body: `max_upload = "lots"`},
		{name: "bad timeout", body: `shutdown_timeout = "soon"`},
		{name: "bad pagination", body: "[pagination]\ndefault_page_size = 500\nmax_page_size = 10"},
		{name: "malformed toml", body: `backend = `},
		{name: "bad env bool", env: map[string]string{EnvCookieSecure: "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "c.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "blogdesk.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
addr = "127.0.0.1:4000"
backend = "file"

[pagination]
default_page_size = 10
page_sizes = [10, 20]

[logging]
level = "warn"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blogdesk.dev.toml"), []byte(`
backend = "memory"
cookie_secure = true

[pagination]
max_page_size = 20

[logging]
level = "debug"
`), 0o644))

	tests := []struct {
		name    string
		env     string
		backend string
		level   logging.Level
		max     int
		secure  bool
	}{
		{name: "no env", backend: BackendFile, level: logging.LevelWarn, max: 100},
		{name: "env without overlay file", env: "prod", backend: BackendFile, level: logging.LevelWarn, max: 100},
		{name: "overlay merged", env: "dev", backend: BackendMemory, level: logging.LevelDebug, max: 20, secure: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvEnv, tt.env)
			cfg, err := LoadConfig(base)
			require.NoError(t, err)

			assert.Equal(t, "127.0.0.1:4000", cfg.Addr, "base values survive the overlay")
			assert.Equal(t, tt.backend, cfg.Backend)
			assert.Equal(t, tt.level, cfg.Logging.Level)
			assert.Equal(t, tt.max, cfg.Pagination.MaxPageSize)
			assert.Equal(t, tt.secure, cfg.CookieSecure)
			assert.Equal(t, 10, cfg.Pagination.DefaultPageSize)
			assert.Equal(t, []int{10, 20}, cfg.Pagination.PageSizes)
		})
	}
}

func TestLoadConfigOverlayInvalid(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "blogdesk.toml")
	require.NoError(t, os.WriteFile(base, []byte(`backend = "file"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blogdesk.dev.toml"), []byte(`backend = `), 0o644))
	t.Setenv(EnvEnv, "dev")

	_, err := LoadConfig(base)
	assert.ErrorContains(t, err, "overlay")
}

func TestConfigMerge(t *testing.T) {
	cfg := Config{Addr: ":1", Backend: BackendSQLite, CookieSecure: true, MaxImageWidth: 1200}
	cfg.Merge(&Config{Backend: BackendFile, MaxImageWidth: 640})

	assert.Equal(t, ":1", cfg.Addr)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.True(t, cfg.CookieSecure, "a zero overlay must not switch CookieSecure off")
	assert.Equal(t, 640, cfg.MaxImageWidth)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{BackendSQLite, BackendFile, BackendMemory} {
		t.Run(name, func(t *testing.T) {
			b, closer, err := OpenBackend(Config{Backend: name, DataPath: filepath.Join(dir, name, "data")})
			require.NoError(t, err)
			require.NoError(t, b.Set("k", "v"))
			v, ok, err := b.Get("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", v)
			if closer != nil {
				require.NoError(t, closer.Close())
			}
		})
	}
}
