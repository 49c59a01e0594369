package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/coderoom/server/internal/blobstore"
	"github.com/coderoom/server/internal/config"
	"github.com/coderoom/server/internal/env"
	"github.com/coderoom/server/internal/gateway"
	"github.com/coderoom/server/internal/pty"
	"github.com/coderoom/server/internal/snapshot"
	"github.com/coderoom/server/internal/store"
	"github.com/coderoom/server/internal/store/pg"
	"github.com/coderoom/server/internal/store/sqlite"
	"github.com/coderoom/server/internal/termstream"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	stores, closeStores, err := buildStores(cfg)
	if err != nil {
		slog.Error("build stores", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	blobsDir := config.ExpandHome(cfg.Storage.BlobStoreDir)
	if err := os.MkdirAll(blobsDir, 0o755); err != nil {
		slog.Error("create blob store dir", "error", err)
		os.Exit(1)
	}
	blobs := blobstore.New(blobsDir)
	snapshots := snapshot.New(blobs, stores)

	cacheDir := config.ExpandHome(cfg.Storage.TerminalCacheDir)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		slog.Error("create terminal cache dir", "error", err)
		os.Exit(1)
	}
	terminals := termstream.New(cacheDir)
	stopTerminalSweep := make(chan struct{})
	terminals.StartSweeping(stopTerminalSweep)
	defer close(stopTerminalSweep)

	sanitizer, err := env.Load(filepath.Join(filepath.Dir(cfgPath), ".env"))
	if err != nil {
		slog.Error("load .env for sanitizer", "error", err)
		os.Exit(1)
	}
	ptys := pty.NewManager(sanitizer, terminals)
	defer ptys.CloseAll()

	envPath := filepath.Join(filepath.Dir(cfgPath), ".env")
	stopWatch, err := watchEnvFile(envPath, ptys)
	if err != nil {
		slog.Warn("watch .env for changes", "error", err)
	} else {
		defer stopWatch()
	}

	srv := gateway.NewServer(gateway.Config{
		Host:            cfg.Gateway.Host,
		Port:            cfg.Gateway.Port,
		AllowedOrigins:  cfg.Gateway.AllowedOrigins,
		RateLimitRPM:    cfg.Gateway.RateLimitRPM,
		BrowserEnabled:  cfg.Tools.Browser.Enabled,
		BrowserHeadless: cfg.Tools.Browser.Headless,
	}, stores, snapshots, ptys, terminals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.StartExternalMCP(ctx, cfg.Tools.McpServers)

	slog.Info("coderoom serve", "host", cfg.Gateway.Host, "port", cfg.Gateway.Port, "db_driver", cfg.Database.Driver)
	if err := srv.Start(ctx); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
	slog.Info("coderoom stopped")
}

// watchEnvFile reloads the PTY sanitizer whenever .env changes on disk, so a
// developer editing secrets doesn't have to restart the gateway to pick them
// up. The watch is best-effort: a missing .env's parent directory still
// watches fine, fsnotify just never fires until the file is created.
func watchEnvFile(path string, ptys *pty.Manager) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				sanitizer, err := env.Load(path)
				if err != nil {
					slog.Error("reload .env", "error", err)
					continue
				}
				ptys.SetSanitizer(sanitizer)
				slog.Info(".env reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("fsnotify watch error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

// buildStores opens the configured database backend and returns its
// store.Stores along with a cleanup func to close the underlying connection.
func buildStores(cfg *config.Config) (*store.Stores, func(), error) {
	if cfg.IsManagedMode() {
		stores, err := pg.NewStores(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres stores: %w", err)
		}
		return stores, func() {}, nil
	}

	path := config.ExpandHome(cfg.Database.SQLitePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite stores: %w", err)
	}
	return sqlite.NewStores(db), func() { db.Close() }, nil
}
