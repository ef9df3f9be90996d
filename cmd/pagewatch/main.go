// Command pagewatch is the competitor page monitoring daemon.
//
// Usage:
//
//	pagewatch -config pagewatch.yaml        # scheduler + HTTP API
//	pagewatch -mcp                          # MCP server on stdio
//	pagewatch -url https://example.com      # one-shot capture, result on stdout
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/pagewatch/pagewatch/internal/alert"
	"github.com/pagewatch/pagewatch/internal/api"
	"github.com/pagewatch/pagewatch/internal/capture"
	"github.com/pagewatch/pagewatch/internal/config"
	"github.com/pagewatch/pagewatch/internal/dbopen"
	"github.com/pagewatch/pagewatch/internal/mcptool"
	"github.com/pagewatch/pagewatch/internal/renderer"
	"github.com/pagewatch/pagewatch/internal/schedule"
	"github.com/pagewatch/pagewatch/internal/store"
	"github.com/pagewatch/pagewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to pagewatch.yaml config file")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio instead of running the daemon")
	oneURL := flag.String("url", "", "capture a single URL once and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *oneURL, *mcpStdio); err != nil {
		logger.Error("pagewatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, oneURL string, mcpStdio bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	core, err := buildCore(cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	if oneURL != "" {
		return runOnce(ctx, core, oneURL)
	}
	if mcpStdio {
		return runMCP(ctx, core)
	}
	return runDaemon(ctx, logger, cfg, core)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

// core holds the wired monitoring stack.
type core struct {
	store    *store.Store
	renderer renderer.Renderer
	engine   *version.Engine
	orch     *capture.Orchestrator
	local    *renderer.Local
}

func (c *core) Close() {
	if c.local != nil {
		c.local.Close()
	}
	c.store.DB.Close()
}

func buildCore(cfg *config.Config, logger *slog.Logger) (*core, error) {
	db, err := dbopen.Open(cfg.Database.Path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema))
	if err != nil {
		return nil, err
	}

	s := store.New(db, store.WithCompression(*cfg.Engine.CompressionEnabled))

	var rend renderer.Renderer
	var local *renderer.Local
	if cfg.Renderer.BaseURL != "" {
		rend = renderer.NewRemote(cfg.Renderer.BaseURL, cfg.Renderer.Token,
			renderer.WithLogger(logger))
	} else {
		local = renderer.NewLocal(logger)
		rend = local
	}

	eng := version.New(s, version.Config{
		FullVersionInterval: cfg.Engine.FullVersionInterval,
		MaxVersions:         cfg.Engine.MaxVersionsPerCompetitor,
		Logger:              logger,
	})
	em := alert.New(s, logger)
	orch := capture.New(s, rend, eng, em, capture.Config{
		ChangeThreshold:            cfg.Engine.ChangeThreshold,
		SignificantChangeThreshold: cfg.Engine.SignificantChangeThreshold,
		WaitMs:                     cfg.Renderer.WaitMs,
		RendererTimeoutMs:          cfg.Renderer.TimeoutMs,
		ViewportWidth:              cfg.Renderer.ViewportWidth,
		ViewportHeight:             cfg.Renderer.ViewportHeight,
		Timeout:                    time.Duration(cfg.Engine.CaptureTimeoutMs) * time.Millisecond,
		Logger:                     logger,
	})

	return &core{store: s, renderer: rend, engine: eng, orch: orch, local: local}, nil
}

// runOnce registers url as a competitor if it is not yet monitored, captures
// it, and prints the result as JSON.
func runOnce(ctx context.Context, core *core, url string) error {
	url = renderer.NormalizeURL(url)

	comps, err := core.store.ListCompetitors(ctx)
	if err != nil {
		return err
	}
	var id string
	for _, c := range comps {
		if c.URL == url {
			id = c.ID
			break
		}
	}
	if id == "" {
		c := &store.Competitor{URL: url, MonitoringEnabled: true}
		if err := core.store.InsertCompetitor(ctx, c); err != nil {
			return err
		}
		id = c.ID
	}

	res, err := core.orch.Capture(ctx, id, capture.Options{IsManualCheck: true})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runMCP(ctx context.Context, core *core) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "pagewatch",
		Version: "1.0.0",
	}, nil)
	mcptool.New(core.store, core.orch, core.engine).RegisterMCP(srv)
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func runDaemon(ctx context.Context, logger *slog.Logger, cfg *config.Config, core *core) error {
	sched := schedule.New(core.store, core.orch, core.engine, schedule.Config{
		CheckInterval:  cfg.Scheduler.CheckInterval,
		Workers:        cfg.Scheduler.Workers,
		RetentionSweep: cfg.Scheduler.RetentionSweep,
		Logger:         logger,
	})
	go sched.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewService(core.store, core.orch, core.engine, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("pagewatch: server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	logger.Info("pagewatch: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("pagewatch: shutdown", "error", err)
	}
	logger.Info("pagewatch: stopped")
	return nil
}
