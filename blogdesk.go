// Package blogdesk is a single-operator blog admin built with Go, Echo, and
// templ. It serves the post collection held by package blog over a small
// JSON API, with per-browser pagination kept in the session cookie.
//
// Users may provide their own templ dashboard via the ViewFuncs struct;
// blogdesk handles the handler logic, middleware, and persistence.
package blogdesk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/blogdesk/blog"
	"github.com/eringen/blogdesk/kv"
	"github.com/eringen/blogdesk/logging"
)

// ViewFuncs holds optional templ components rendered by the HTML routes.
// Nil fields fall back to plain responses.
type ViewFuncs struct {
	AdminDashboard func(view DashboardView, csrfToken string) templ.Component
	NotFound       func() templ.Component
	ServerError    func() templ.Component
}

// App wires together the backend, store, handlers, and middleware.
type App struct {
	Config Config
	Echo   *echo.Echo
	Store  *blog.Store
	Views  ViewFuncs
	Log    *slog.Logger

	backend      kv.Backend
	closer       io.Closer
	now          func() time.Time
	customRoutes []func(*App)
	cancelSub    func()
}

// New creates an App. Call Init (or Start) before serving.
func New(cfg Config, views ViewFuncs, opts ...Option) *App {
	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Views:  views,
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init finalizes the configuration, opens and loads the store, and
// registers middleware and routes.
func (a *App) Init() error {
	if err := a.Config.Finalize(); err != nil {
		return fmt.Errorf("blogdesk: config: %w", err)
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("blogdesk: SessionSecret is required")
	}
	if a.Log == nil {
		a.Log = logging.New(a.Config.Logging, os.Stdout)
	}

	if a.backend == nil {
		b, closer, err := OpenBackend(a.Config)
		if err != nil {
			return fmt.Errorf("blogdesk: open backend: %w", err)
		}
		a.backend, a.closer = b, closer
	}

	opts := []blog.StoreOption{blog.WithLogger(a.Log)}
	if a.now != nil {
		opts = append(opts, blog.WithClock(a.now))
	}
	a.Store = blog.NewStore(a.backend, opts...)
	a.cancelSub = a.Store.Subscribe(func(posts []blog.Post) {
		a.Log.Debug("collection changed", "posts", len(posts))
	})
	if err := a.Store.Load(); err != nil {
		// The migrated collection is in memory; Flush retries the write.
		a.Log.Error("persist migrated collection", "error", err)
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the app and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	a.Log.Info("listening", "addr", a.Config.Addr, "backend", a.Config.Backend)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully and retries any failed write.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	if a.Store != nil && a.Store.Dirty() {
		if ferr := a.Store.Flush(); ferr != nil {
			err = errors.Join(err, ferr)
		}
	}
	return err
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/admin/", a.handleAdmin)

	api := e.Group("/api")
	api.GET("/posts", a.handleListPosts)
	api.GET("/posts/:id", a.handleGetPost)
	api.POST("/posts", a.handleCreatePost)
	api.PUT("/posts/:id", a.handleUpdatePost)
	api.DELETE("/posts/:id", a.handleDeletePost)
	api.POST("/flush", a.handleFlush)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.cancelSub != nil {
		a.cancelSub()
	}
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// clock returns the current time in UTC from the configured time source.
func (a *App) clock() time.Time {
	if a.now != nil {
		return a.now().UTC()
	}
	return time.Now().UTC()
}

// OpenBackend opens the backend named by cfg.Backend. The returned closer is
// nil for backends without resources to release.
func OpenBackend(cfg Config) (kv.Backend, io.Closer, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		s, err := kv.NewSQLite(cfg.DataPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendFile:
		f, err := kv.OpenFile(cfg.DataPath)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	case BackendMemory:
		return kv.NewMemory(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
