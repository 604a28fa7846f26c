// Package main is the entry point for the bibdb server.
//
// bibdb is a multi-user bibliographic data server. Each user and group
// library holds collections, items and saved searches under a single
// version counter that clients sync against. Configuration is read from CLI
// flags, a .env file in the data directory and server_config.json (JWT
// secret, limits, quotas, rate limits).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/bibdb/internal/auth"
	"github.com/maruel/bibdb/internal/config"
	"github.com/maruel/bibdb/internal/library"
	"github.com/maruel/bibdb/internal/server"
	"github.com/maruel/bibdb/internal/server/handlers"
	"github.com/maruel/bibdb/internal/server/ipgeo"
	"github.com/maruel/bibdb/internal/server/ratelimit"
	"github.com/maruel/bibdb/internal/storage/git"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "bibdb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080). Use 0.0.0.0:port to listen on all interfaces.")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	geoDB := flag.String("geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	issueKey := flag.Int64("issue-key", 0, "Print an API key for this user ID and exit")
	keyName := flag.String("key-name", "", "Name of the key printed by -issue-key")
	keyGroups := flag.String("key-groups", "", "Comma separated group IDs the key printed by -issue-key can access")
	keyWrite := flag.Bool("key-write", false, "Grant write access to the key printed by -issue-key")
	keyTTL := flag.Duration("key-ttl", 0, "Lifetime of the key printed by -issue-key; 0 never expires")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// Load server_config.json (creates with defaults if missing)
	serverCfg, err := config.Load(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", config.FileName, err)
	}

	// Override with .env file values if not explicitly set via flags
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}
	if !set["geo-db"] {
		if v := env["GEO_DB"]; v != "" {
			*geoDB = v
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	if *issueKey != 0 {
		return printKey(serverCfg.JWTSecret, *issueKey, *keyName, *keyGroups, *keyWrite, *keyTTL)
	}

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	lib, err := library.NewService(filepath.Join(*dataDir, "db"), &library.Options{Limits: serverCfg.Limits})
	if err != nil {
		return fmt.Errorf("failed to initialize library service: %w", err)
	}

	svc := &handlers.Services{Library: lib}
	if serverCfg.Git.Enabled {
		svc.Repo, err = git.Open(ctx, *dataDir, serverCfg.Git.Name, serverCfg.Git.Email, "db", config.FileName)
		if err != nil {
			return fmt.Errorf("failed to initialize git history: %w", err)
		}
		slog.InfoContext(ctx, "Git history enabled", "dir", *dataDir)
	}

	// Open IP geolocation database if configured
	if *geoDB != "" {
		svc.Geo, err = ipgeo.Open(*geoDB, serverCfg.BlockedCountries)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = svc.Geo.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", *geoDB, "blocked", len(serverCfg.BlockedCountries))
	} else if len(serverCfg.BlockedCountries) != 0 {
		slog.WarnContext(ctx, "blocked_countries ignored without -geo-db")
	}

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	limiters := ratelimit.New(serverCfg.RateLimits)
	defer limiters.Close()

	buildVersion, _, _, _ := getBuildInfo()
	cfg := &handlers.Config{
		JWTSecret:   serverCfg.JWTSecret,
		RequireAuth: serverCfg.RequireAuth,
		Version:     buildVersion,
		Quotas:      serverCfg.Quotas,
	}
	if !cfg.RequireAuth {
		slog.WarnContext(ctx, "Authentication disabled, every library is writable anonymously")
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg, limiters),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	// Wait for either context cancellation or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		// Graceful shutdown
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == "ip" || a.Key == "country" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" || v == ipgeo.Local {
					return slog.Attr{}
				}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// printKey prints a signed API key on stdout.
func printKey(secret []byte, userID int64, name, groups string, write bool, ttl time.Duration) error {
	k := &auth.Key{UserID: userID, Name: name, Write: write}
	for g := range strings.SplitSeq(groups, ",") {
		if g = strings.TrimSpace(g); g == "" {
			continue
		}
		id, err := strconv.ParseInt(g, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid group ID %q", g)
		}
		k.Groups = append(k.Groups, id)
	}
	token, err := auth.Issue(secret, k, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue key: %w", err)
	}
	fmt.Println(token)
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("bibdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
