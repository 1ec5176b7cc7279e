package blogdesk

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"

	"github.com/eringen/blogdesk/kv"
	"github.com/eringen/blogdesk/logging"
	"github.com/eringen/blogdesk/pagination"
)

const (
	EnvConfig        = "BLOGDESK_CONFIG"
	EnvEnv           = "BLOGDESK_ENV"
	EnvAddr          = "BLOGDESK_ADDR"
	EnvBackend       = "BLOGDESK_BACKEND"
	EnvDataPath      = "BLOGDESK_DATA_PATH"
	EnvSessionSecret = "BLOGDESK_SESSION_SECRET"
	EnvCookieSecure  = "BLOGDESK_COOKIE_SECURE"
	EnvMaxUpload     = "BLOGDESK_MAX_UPLOAD"
	EnvMaxImageWidth = "BLOGDESK_MAX_IMAGE_WIDTH"
)

// Backend names accepted in Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config holds all configuration for a blogdesk instance.
type Config struct {
	Addr            string `toml:"addr"`             // Listen address (default "127.0.0.1:3000")
	Backend         string `toml:"backend"`          // sqlite, file or memory (default sqlite)
	DataPath        string `toml:"data_path"`        // Backend location (default "data/blogdesk.db")
	SessionSecret   string `toml:"session_secret"`   // Required by serve: cookie signing secret
	CookieSecure    bool   `toml:"cookie_secure"`    // Set true behind HTTPS
	MaxUpload       string `toml:"max_upload"`       // Request body limit (default "8MB")
	MaxImageWidth   int    `toml:"max_image_width"`  // Uploaded images are downscaled past this (default 1200)
	ShutdownTimeout string `toml:"shutdown_timeout"` // Graceful shutdown window (default "10s")

	Pagination pagination.Config `toml:"pagination"`
	Logging    logging.Config    `toml:"logging"`
}

// LoadConfig reads path when it is non-empty, then applies defaults and
// environment overrides. When BLOGDESK_ENV names an environment and a sibling
// overlay file exists (blogdesk.toml -> blogdesk.<env>.toml), its non-zero
// values are merged over the base file first.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		base, err := readConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = base
		if op := overlayPath(path); op != "" {
			overlay, err := readConfig(op)
			if err != nil {
				return Config{}, fmt.Errorf("overlay %s: %w", op, err)
			}
			cfg.Merge(&overlay)
		}
	}
	if err := cfg.Finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func overlayPath(path string) string {
	env := os.Getenv(EnvEnv)
	if env == "" {
		return ""
	}
	ext := filepath.Ext(path)
	op := strings.TrimSuffix(path, ext) + "." + env + ext
	if _, err := os.Stat(op); err != nil {
		return ""
	}
	return op
}

// Merge overlays the non-zero values of o onto c. CookieSecure can only be
// switched on by an overlay.
func (c *Config) Merge(o *Config) {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.Backend != "" {
		c.Backend = o.Backend
	}
	if o.DataPath != "" {
		c.DataPath = o.DataPath
	}
	if o.SessionSecret != "" {
		c.SessionSecret = o.SessionSecret
	}
	if o.CookieSecure {
		c.CookieSecure = true
	}
	if o.MaxUpload != "" {
		c.MaxUpload = o.MaxUpload
	}
	if o.MaxImageWidth != 0 {
		c.MaxImageWidth = o.MaxImageWidth
	}
	if o.ShutdownTimeout != "" {
		c.ShutdownTimeout = o.ShutdownTimeout
	}
	c.Pagination.Merge(&o.Pagination)
	c.Logging.Merge(&o.Logging)
}

// Finalize applies defaults, loads environment overrides, and validates the
// configuration and its sections.
func (c *Config) Finalize() error {
	c.setDefaults()
	if err := c.loadEnv(); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Pagination.Finalize(); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.Logging.Finalize(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// MaxUploadBytes returns MaxUpload in bytes.
func (c *Config) MaxUploadBytes() int64 {
	n, _ := units.RAMInBytes(c.MaxUpload)
	return n
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:3000"
	}
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.DataPath == "" {
		switch c.Backend {
		case BackendFile:
			c.DataPath = "data/blogdesk.json"
		default:
			c.DataPath = "data/blogdesk.db"
		}
	}
	if c.MaxUpload == "" {
		c.MaxUpload = "8MB"
	}
	if c.MaxImageWidth == 0 {
		c.MaxImageWidth = 1200
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "10s"
	}
}

func (c *Config) loadEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvDataPath); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv(EnvSessionSecret); v != "" {
		c.SessionSecret = v
	}
	if v := os.Getenv(EnvCookieSecure); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCookieSecure, err)
		}
		c.CookieSecure = b
	}
	if v := os.Getenv(EnvMaxUpload); v != "" {
		c.MaxUpload = v
	}
	if v := os.Getenv(EnvMaxImageWidth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxImageWidth, err)
		}
		c.MaxImageWidth = n
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("invalid backend %q", c.Backend)
	}
	if _, err := units.RAMInBytes(c.MaxUpload); err != nil {
		return fmt.Errorf("invalid max_upload: %w", err)
	}
	if c.MaxImageWidth < 0 {
		return fmt.Errorf("invalid max_image_width %d", c.MaxImageWidth)
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithBackend uses b instead of opening the configured backend. The caller
// keeps ownership of b.
func WithBackend(b kv.Backend) Option {
	return func(a *App) {
		a.backend = b
	}
}

// WithLogger replaces the logger built from Config.Logging.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.Log = l
	}
}

// WithClock sets the time source for the store and for request defaults.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
