package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eringen/blogdesk"
	"github.com/eringen/blogdesk/blog"
	"github.com/eringen/blogdesk/logging"
	"github.com/eringen/blogdesk/migrate"
	"github.com/eringen/blogdesk/views"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:], os.Stdout)
	case "version":
		fmt.Printf("blogdesk %s (schema v%d)\n", version, migrate.CurrentVersion)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(name string, args []string) (blogdesk.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", blogdesk.EnvOr(blogdesk.EnvConfig, ""), "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		return blogdesk.Config{}, err
	}
	return blogdesk.LoadConfig(*path)
}

func runServe(args []string) error {
	cfg, err := loadConfig("serve", args)
	if err != nil {
		return err
	}
	app := blogdesk.New(cfg, views.Funcs())
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- app.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

// runMigrate loads the collection through the migrations and reports the
// resulting schema version.
func runMigrate(args []string, out io.Writer) error {
	cfg, err := loadConfig("migrate", args)
	if err != nil {
		return err
	}
	backend, closer, err := blogdesk.OpenBackend(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	log := logging.New(cfg.Logging, os.Stderr)
	store := blog.NewStore(backend, blog.WithLogger(log))
	if err := store.Load(); err != nil {
		if errors.Is(err, blog.ErrStorageWrite) {
			return fmt.Errorf("migrated collection could not be saved: %w", err)
		}
		return err
	}
	fmt.Fprintf(out, "%d posts at schema v%d\n", len(store.List()), migrate.CurrentVersion)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `blogdesk - A single-operator blog admin built with Go, Echo, and templ

Usage:
  blogdesk <command> [arguments]

Commands:
  serve [-config file]     Start the admin server
  migrate [-config file]   Upgrade stored posts to the current schema
  version                  Print the blogdesk version
  help                     Show this help message

Environment:
  BLOGDESK_CONFIG          Config file used when -config is not given
  BLOGDESK_ENV             Merges <config>.<env>.toml over the config file
  BLOGDESK_SESSION_SECRET  Cookie signing secret (required by serve)
  BLOGDESK_ADDR            Listen address (default 127.0.0.1:3000)
  BLOGDESK_BACKEND         sqlite, file or memory (default sqlite)
  BLOGDESK_DATA_PATH       Backend location`)
}
