// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/revuhq/revu/internal/app"
	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/db"
	"github.com/revuhq/revu/internal/llm"
	"github.com/revuhq/revu/internal/logger"
	"github.com/revuhq/revu/internal/review"
	"github.com/revuhq/revu/internal/server"
	"github.com/revuhq/revu/internal/storage"
)

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logWriter := provideLogWriter(cfg)
	slogLogger := logger.NewLogger(cfg.Logging, logWriter)

	// Database and migrations
	dbConn, dbCleanup, err := db.NewDatabase(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Storage
	store := storage.NewStore(dbConn.DB)

	// LLM client
	model, err := llm.NewOpenAIClient(cfg.AI)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	// Prompt Manager
	promptMgr, err := llm.NewPromptManager()
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create prompt manager: %w", err)
	}

	// Review pipeline and service
	pipeline := review.NewPipeline(model, promptMgr, cfg.AI.StageTimeout, slogLogger)
	svc := review.NewService(store, pipeline, cfg.Languages, slogLogger)

	// Auth and async tasks
	tokens := provideTokenManager(cfg)
	taskMgr := provideTaskManager(cfg, slogLogger)

	// HTTP surface
	router := server.NewRouter(cfg, svc, store, tokens, taskMgr, slogLogger)
	srv := server.NewServer(cfg.ServerPort, router, slogLogger)

	// App
	application := app.NewApp(cfg, srv, taskMgr, slogLogger)

	cleanup := func() {
		dbCleanup()
	}

	return application, cleanup, nil
}
