package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavemcp/wavemcp/internal/config"
	"github.com/wavemcp/wavemcp/internal/content"
	"github.com/wavemcp/wavemcp/internal/lock"
	"github.com/wavemcp/wavemcp/internal/mcp"
	"github.com/wavemcp/wavemcp/internal/panel"
	"github.com/wavemcp/wavemcp/internal/project"
	"github.com/wavemcp/wavemcp/internal/scheduler"
	"github.com/wavemcp/wavemcp/internal/session"
	"github.com/wavemcp/wavemcp/internal/sync"
	"github.com/wavemcp/wavemcp/internal/task"
	projectTools "github.com/wavemcp/wavemcp/internal/tools/project"
	taskTools "github.com/wavemcp/wavemcp/internal/tools/task"
)

// lockSweepInterval is how often runServe's background scheduler checks
// every connected project for stale lock sentinels.
const lockSweepInterval = 5 * time.Minute

// watchRefreshInterval is how often the panel watcher's directory set is
// reconciled against the registry's active-task bindings.
const watchRefreshInterval = time.Minute

// lockSweepJob logs any stale lock sentinel left behind by a crashed
// process, so an operator watching server logs doesn't have to run
// 'wavemcp doctor' by hand to notice one.
type lockSweepJob struct {
	projects *project.Registry
	logger   *slog.Logger
}

func (j *lockSweepJob) Name() string { return "lock-sweep" }

// watchRefreshJob keeps the panel watcher's directory set current: task
// directories are created at init time, after the watcher started, so the
// watch set is re-derived from the registry's active-task bindings on
// every tick. Watch is idempotent per directory via the seen set here.
type watchRefreshJob struct {
	projects *project.Registry
	watcher  *task.Watcher
	seen     map[string]struct{}
}

func (j *watchRefreshJob) Name() string { return "panel-watch-refresh" }

func (j *watchRefreshJob) Run(ctx context.Context) error {
	list, err := j.projects.List()
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	for _, p := range list {
		if p.ActiveTaskDir == "" {
			continue
		}
		if _, ok := j.seen[p.ActiveTaskDir]; ok {
			continue
		}
		if err := j.watcher.Watch(p.ActiveTaskDir); err != nil {
			continue
		}
		j.seen[p.ActiveTaskDir] = struct{}{}
	}
	return nil
}

func (j *lockSweepJob) Run(ctx context.Context) error {
	list, err := j.projects.List()
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	now := time.Now()
	for _, p := range list {
		n, err := scanRoot(p.Root, now)
		if err != nil {
			j.logger.Warn("lock sweep failed", "root", p.Root, "error", err)
			continue
		}
		if n > 0 {
			j.logger.Warn("stale locks found", "root", p.Root, "count", n)
		}
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server (stdio or http transport)",
	Long:  "Start the wavemcp MCP server. Transport mode, port, and other settings come from wavemcp.toml and WAVEMCP_* environment variables; see 'wavemcp info'.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	ver := cfg.Server.Version
	if version != "dev" {
		ver = version
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting wavemcp", "version", ver, "transport", cfg.Transport.Mode)

	projects, err := project.NewRegistry()
	if err != nil {
		return fmt.Errorf("opening project registry: %w", err)
	}
	sess := session.New()

	lockCfg := lock.Config{
		RetryInterval:  time.Duration(cfg.Lock.RetryIntervalMS) * time.Millisecond,
		AcquireTimeout: time.Duration(cfg.Lock.DefaultTimeoutS) * time.Second,
		StaleAfter:     lock.DefaultConfig().StaleAfter,
	}
	locks := lock.NewManager(fmt.Sprintf("wavemcp-%d", os.Getpid()), lockCfg)
	store := task.NewStore(locks, panel.RenderWithFrontMatter, logger)

	watcher, err := task.NewWatcher(logger, func(taskDir string) {
		sess.MarkPanelDirty(taskDir)
		logger.Debug("panel edited outside process", "dir", taskDir)
	})
	if err != nil {
		return fmt.Errorf("starting panel watcher: %w", err)
	}
	go watcher.Run(ctx)
	defer watcher.Stop()

	refresh := &watchRefreshJob{projects: projects, watcher: watcher, seen: make(map[string]struct{})}
	refresh.Run(ctx)

	sched := scheduler.NewScheduler(logger)
	sched.AddJob(refresh, watchRefreshInterval)
	sched.AddJob(&lockSweepJob{projects: projects, logger: logger}, lockSweepInterval)
	sched.Start(ctx)
	defer sched.Stop()

	strategy := sync.Strategy(cfg.Sync.Strategy)
	skew := sync.SkewDefault
	requireRerun := cfg.EVR.RequireRerunAfterPlanStart
	syncCache := sync.NewCache(time.Duration(cfg.Sync.CacheTTLMinutes) * time.Minute)

	registry := mcp.NewRegistry()
	registry.Register(projectTools.NewProjectInfo(projects, store, sess, requireRerun))
	registry.Register(projectTools.NewConnectProject(projects, sess))
	registry.Register(taskTools.NewCurrentTaskInit(projects, store, sess))
	registry.Register(taskTools.NewCurrentTaskRead(projects, store, sess, strategy, skew, requireRerun, syncCache))
	registry.Register(taskTools.NewCurrentTaskUpdate(projects, store, sess, requireRerun))
	registry.Register(taskTools.NewCurrentTaskModify(projects, store, sess))
	registry.Register(taskTools.NewCurrentTaskComplete(projects, store, sess, requireRerun))
	registry.Register(taskTools.NewCurrentTaskLog(projects, store, sess))

	registry.RegisterPrompt(&content.StartTaskPrompt{})
	registry.RegisterResource(&content.PanelFormatResource{})
	registry.RegisterResource(&content.ToolReferenceResource{})

	server := mcp.NewServer(registry, mcp.ServerInfo{
		Name:    cfg.Server.Name,
		Version: ver,
	}, logger)

	if cfg.Transport.Mode == "http" {
		httpServer := mcp.NewHTTPServer(server, cfg.Transport.CORSOrigins, logger)
		addr := fmt.Sprintf("%s:%s", cfg.Transport.Host, cfg.Transport.Port)
		srv := &http.Server{Addr: addr, Handler: httpServer.Handler()}

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()

		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	return server.Run(ctx)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
