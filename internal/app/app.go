package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/flowgridgo/internal/api"
	"github.com/vk/flowgridgo/internal/background"
	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/config"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/hclgraph"
	"github.com/vk/flowgridgo/internal/memstore"
	"github.com/vk/flowgridgo/internal/worker"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *config.Config
	caps    *capability.Registry
	engine  *engine.Engine
	manager *background.Manager
	pool    *worker.Pool
	server  *api.Server
	cancel  context.CancelFunc
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(ctx context.Context, outW io.Writer, cfg *config.Config, modules ...capability.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	reg := capability.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All capability modules registered.", "count", len(modules))

	runCtx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))
	pool := worker.New(runCtx, cfg.Workers)
	eng := engine.New(memstore.NewGraphs(), memstore.NewRuns(), reg, pool)
	manager := background.NewManager(runCtx, eng)

	if cfg.GraphsPath != "" {
		defs, err := hclgraph.LoadPath(ctx, cfg.GraphsPath)
		if err != nil {
			cancel()
			pool.Close()
			return nil, fmt.Errorf("failed to load graph definitions: %w", err)
		}
		for _, def := range defs {
			graphID, err := eng.Graphs().Create(ctx, def)
			if err != nil {
				cancel()
				pool.Close()
				return nil, fmt.Errorf("failed to register graph %q: %w", def.Name, err)
			}
			logger.Info("📋 Graph loaded from file.", "name", def.Name, "graph_id", graphID)
		}
	}

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		caps:    reg,
		engine:  eng,
		manager: manager,
		pool:    pool,
		server:  api.NewServer(logger, eng, manager, reg),
		cancel:  cancel,
	}, nil
}

// Engine returns the application's engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Capabilities returns the application's capability registry. This is
// primarily for testing.
func (a *App) Capabilities() *capability.Registry {
	return a.caps
}
