package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/llm"
	"github.com/revuhq/revu/internal/logger"
	"github.com/revuhq/revu/internal/review"
	"github.com/revuhq/revu/internal/storage"
)

var (
	reviewCmdTimeout   int
	reviewCmdShowPatch bool
)

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.FgHiBlack)
	boldColor    = color.New(color.Bold)
)

var reviewCmd = &cobra.Command{
	Use:   "review [file]",
	Short: "Run an AI review of a local source file",
	Long: `Run an AI review of a local source file without the HTTP server.

The file is pushed through the full review pipeline (language detection,
line-by-line review, refactoring) against an in-memory store, and the
result is printed to the terminal.

Examples:
  revu-cli review main.py
  revu-cli review --show-patch src/app.ts`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewCmd.Flags().IntVar(&reviewCmdTimeout, "timeout", 10, "Overall review timeout in minutes")
	reviewCmd.Flags().BoolVar(&reviewCmdShowPatch, "show-patch", false, "Print the refactored code after the review")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(_ *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	filename := filepath.Base(path)
	if !cfg.Languages.AllowedForFile(filename) {
		return fmt.Errorf("file type of %q is not supported for review", filename)
	}

	code, err := os.ReadFile(path) //nolint:gosec // reviewing a user-supplied local file is the point
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(reviewCmdTimeout)*time.Minute)
	defer cancel()

	// Logs go to stderr so the review output stays clean.
	log := logger.NewLogger(cfg.Logging, os.Stderr)

	model, err := llm.NewOpenAIClient(cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	prompts, err := llm.NewPromptManager()
	if err != nil {
		return fmt.Errorf("failed to create prompt manager: %w", err)
	}

	store := storage.NewMemoryStore()
	owner, err := store.CreateUser(ctx, "local", "")
	if err != nil {
		return fmt.Errorf("failed to create local user: %w", err)
	}

	pipeline := review.NewPipeline(model, prompts, cfg.AI.StageTimeout, log)
	svc := review.NewService(store, pipeline, cfg.Languages, log)

	titleColor.Println("Revu - local file review")
	dimColor.Printf("   Target: %s\n\n", path)

	start := time.Now()
	payload, _, err := svc.Submit(ctx, owner.ID, filename, string(code))
	if err != nil {
		return fmt.Errorf("review failed: %w", err)
	}
	elapsed := time.Since(start).Round(time.Millisecond)

	boldColor.Printf("Language: ")
	fmt.Println(payload.Language)
	dimColor.Printf("Reviewed in %s\n\n", elapsed)

	if len(payload.Reviews) == 0 {
		successColor.Println("No issues found.")
	} else {
		warnColor.Printf("%d comment(s):\n\n", len(payload.Reviews))
		for _, c := range payload.Reviews {
			boldColor.Printf("  line %d: ", c.LineNumber)
			fmt.Printf("%s\n", c.Code)
			fmt.Printf("    %s\n\n", c.Review)
		}
	}

	if reviewCmdShowPatch && payload.RefactoredCode != nil && *payload.RefactoredCode != "" {
		titleColor.Println("Refactored code:")
		fmt.Println(*payload.RefactoredCode)
	}

	return nil
}
