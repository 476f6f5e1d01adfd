// Package app initializes and orchestrates the main components of the Revu
// application. It ties together the configuration, server, task manager and
// storage lifecycle.
package app

import (
	"log/slog"

	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/server"
	"github.com/revuhq/revu/internal/tasks"
)

// App holds the main application components.
type App struct {
	cfg     *config.Config
	server  *server.Server
	taskMgr *tasks.Manager
	logger  *slog.Logger
}

// NewApp assembles the application from its wired dependencies.
func NewApp(cfg *config.Config, srv *server.Server, taskMgr *tasks.Manager, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		server:  srv,
		taskMgr: taskMgr,
		logger:  logger,
	}
}

// Start runs the HTTP server. It blocks until the server stops listening.
func (a *App) Start() error {
	a.logger.Info("starting Revu",
		"server_port", a.cfg.ServerPort,
		"task_workers", a.cfg.Review.TaskWorkers)

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down Revu services")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	// Drain the task manager, allowing in-flight reviews to finish.
	a.taskMgr.Stop()

	if serverErr != nil {
		a.logger.Error("Revu stopped with errors", "error", serverErr)
		return serverErr
	}

	a.logger.Info("Revu stopped successfully")
	return nil
}
