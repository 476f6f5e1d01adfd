package wire

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/wire"
	"github.com/jmoiron/sqlx"

	"github.com/revuhq/revu/internal/app"
	"github.com/revuhq/revu/internal/auth"
	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/db"
	"github.com/revuhq/revu/internal/llm"
	"github.com/revuhq/revu/internal/logger"
	"github.com/revuhq/revu/internal/review"
	"github.com/revuhq/revu/internal/server"
	"github.com/revuhq/revu/internal/storage"
	"github.com/revuhq/revu/internal/tasks"
)

var AppSet = wire.NewSet(
	app.NewApp,
	server.NewRouter,
	provideServer,
	config.LoadConfig,
	db.NewDatabase,
	storage.NewStore,
	llm.NewPromptManager,
	review.NewPipeline,
	review.NewService,
	provideModel,
	provideTokenManager,
	provideTaskManager,
	provideLanguages,
	provideStageTimeout,
	provideLoggerConfig,
	provideLogWriter,
	provideSlogLogger,
	provideDBConfig,
	provideSQLXConn,
)

func provideServer(cfg *config.Config, router *chi.Mux, logger *slog.Logger) *server.Server {
	return server.NewServer(cfg.ServerPort, router, logger)
}

func provideModel(cfg *config.Config) (llm.Model, error) {
	return llm.NewOpenAIClient(cfg.AI)
}

func provideTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
}

func provideTaskManager(cfg *config.Config, logger *slog.Logger) *tasks.Manager {
	return tasks.NewManager(cfg.Review.TaskWorkers, logger)
}

func provideLanguages(cfg *config.Config) core.Languages {
	return cfg.Languages
}

func provideStageTimeout(cfg *config.Config) time.Duration {
	return cfg.AI.StageTimeout
}

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

func provideLogWriter(cfg *config.Config) io.Writer {
	switch cfg.Logging.Output {
	case "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		f, _ := os.OpenFile("revu.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		return f
	default:
		return os.Stdout
	}
}

func provideSlogLogger(loggerConfig logger.Config, writer io.Writer) *slog.Logger {
	return logger.NewLogger(loggerConfig, writer)
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return cfg.Database
}

func provideSQLXConn(dbConn *db.DB) *sqlx.DB {
	return dbConn.DB
}
