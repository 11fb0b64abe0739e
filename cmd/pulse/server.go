package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/pulse/internal/api"
	"github.com/kalambet/pulse/internal/config"
	"github.com/kalambet/pulse/internal/gateway"
	"github.com/kalambet/pulse/internal/journal"
	"github.com/kalambet/pulse/internal/logging"
	"github.com/kalambet/pulse/internal/push"
	"github.com/kalambet/pulse/internal/reminder"
	"github.com/kalambet/pulse/internal/storage"
	"github.com/kalambet/pulse/internal/worker"
)

// installAttempts bounds retries of the startup cache install job.
const installAttempts = 5

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pulse daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pulse daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pulse daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pulse.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// backends holds the item storage the journal stores persist to and the
// SQLite store backing the offline cache and job queue.
type backends struct {
	items journal.Storage
	store *storage.Store
}

func (b backends) Close() error {
	return b.store.Close()
}

// openBackends opens storage for the configured backend. The disk backend
// keeps items in files and the rest in SQLite; the none backend keeps
// nothing across restarts.
func openBackends(cfg config.Config) (backends, error) {
	switch cfg.Storage.Backend {
	case config.BackendDisk:
		items, err := storage.OpenDisk(cfg.Storage.DataDir)
		if err != nil {
			return backends{}, fmt.Errorf("opening disk storage: %w", err)
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return backends{}, fmt.Errorf("opening storage: %w", err)
		}
		return backends{items: items, store: store}, nil
	case config.BackendNone:
		store, err := storage.Open(":memory:")
		if err != nil {
			return backends{}, fmt.Errorf("opening in-memory storage: %w", err)
		}
		return backends{items: journal.NopStorage{}, store: store}, nil
	default:
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return backends{}, fmt.Errorf("opening storage: %w", err)
		}
		return backends{items: store, store: store}, nil
	}
}

// newGateway builds the offline cache for cfg, or returns nil when no
// origin is configured.
func newGateway(cfg config.Config, cache gateway.CacheStorage, logger *slog.Logger) (*gateway.Gateway, error) {
	if cfg.Gateway.Origin == "" {
		return nil, nil
	}
	origin, err := gateway.NewOrigin(cfg.Gateway.Origin, cfg.Gateway.Timeout)
	if err != nil {
		return nil, fmt.Errorf("configuring gateway origin: %w", err)
	}
	manifest := gateway.DefaultManifest()
	if cfg.Gateway.CacheName != "" {
		manifest.Name = cfg.Gateway.CacheName
	}
	return gateway.New(gateway.Options{
		Manifest: manifest,
		Origin:   origin,
		Cache:    cache,
		Logger:   logger,
	}), nil
}

func newDisplay(cfg config.Config, tray *push.Tray) push.Display {
	if cfg.Notify.WebhookURL == "" {
		return tray
	}
	return push.Fanout{tray, push.NewWebhook(cfg.Notify.WebhookURL)}
}

func runServer(withMCP bool) error {
	printVersion()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCloser, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logCloser.Close()
	logger := slog.Default()

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("pulse is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("pulse is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()
	logger.Info("storage opened", "backend", cfg.Storage.Backend, "data_dir", cfg.Storage.DataDir)

	// Journal stores.
	entries := journal.NewEntryStore(b.items, nil, logger)
	entries.Init()
	settings := journal.NewSettingsStore(b.items, logger)
	settings.Init()
	onboarding := journal.NewOnboardingStore(b.items, logger)
	onboarding.Init()

	// Notifications and reminders.
	tray := push.NewTray()
	pushHandler := push.NewHandler(newDisplay(cfg, tray), logger)
	scheduler := reminder.NewScheduler(settings, entries, pushHandler, nil, cfg.Reminder.Poll)

	// Offline cache. Resume serves the last good generation while the
	// install job refreshes it in the background.
	gw, err := newGateway(cfg, b.store, logger)
	if err != nil {
		return err
	}
	jobs := worker.NewWorker(b.store, 0)
	if gw != nil {
		if err := gw.Resume(ctx); err != nil {
			logger.Warn("resuming offline cache", "error", err)
		}
		jobs.Handle(worker.JobCacheInstall, func(ctx context.Context, _ *storage.Job) error {
			return gw.Start(ctx)
		})
		if _, err := worker.Reschedule(b.store, worker.JobCacheInstall, installAttempts); err != nil {
			logger.Warn("scheduling offline cache install", "error", err)
		}
	}

	handler := api.NewHandler(api.Deps{
		Entries:    entries,
		Settings:   settings,
		Onboarding: onboarding,
		Push:       pushHandler,
		Tray:       tray,
		Gateway:    gw,
		Database:   b.store,
		Logger:     logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		jobs.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Entries:  entries,
			Settings: settings,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		logger.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		logger.Info("pulse listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown with timeout.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if gw != nil {
		gw.Wait()
	}
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("pulse is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pulse (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pulse (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	reportStatus(ctx, client, cfg)
	return nil
}

// reportStatus prints daemon health and, when it is up, the streak and
// offline cache state.
func reportStatus(ctx context.Context, client *apiClient, cfg config.Config) {
	running := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/health", nil)
	if err == nil {
		if resp, err := client.httpClient.Do(req); err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				running = true
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}
	}

	if running {
		if resp, err := client.get(ctx, "/streak"); err == nil {
			var s struct {
				Streak   int  `json:"streak"`
				HasToday bool `json:"hasToday"`
			}
			if decodeJSON(resp, &s) == nil {
				printStatus("Streak", "%d (logged today: %t)", s.Streak, s.HasToday)
			}
		}
		if resp, err := client.get(ctx, "/gateway"); err == nil {
			var st gateway.Status
			switch err := decodeJSON(resp, &st); {
			case err == nil:
				printStatus("Offline cache", "%s (%s)", st.State, st.Manifest)
			case errors.Is(err, errNotFound):
				printStatus("Offline cache", "disabled")
			}
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	if cfg.Gateway.Origin != "" {
		printStatus("Origin", "%s", cfg.Gateway.Origin)
	}
}
