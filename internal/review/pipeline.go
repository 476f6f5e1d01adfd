package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/llm"
)

// Pipeline turns raw source text into a structured review result. It holds no
// state besides its injected completion capability: no caching, no retries
// beyond the single schema-repair attempt in the review stage.
//
// Run never returns an error for a submission. Any failure inside the three
// stages degrades into a result that carries the error as the only review
// comment, with success=false, and it is the caller's decision what to do
// with that.
type Pipeline struct {
	model        llm.Model
	prompts      *llm.PromptManager
	stageTimeout time.Duration
	logger       *slog.Logger
}

// NewPipeline creates a Pipeline. stageTimeout bounds each completion call;
// zero disables the per-stage deadline.
func NewPipeline(model llm.Model, prompts *llm.PromptManager, stageTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if model == nil {
		panic("completion model cannot be nil")
	}
	if prompts == nil {
		panic("prompt manager cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Pipeline{
		model:        model,
		prompts:      prompts,
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// Run executes the three stages: language detection, structured review, and
// refactor generation. Empty input short-circuits to an empty successful
// result without any model calls.
func (p *Pipeline) Run(ctx context.Context, code string) (core.ReviewResult, bool) {
	if strings.TrimSpace(code) == "" {
		return core.ReviewResult{
			Language:       "",
			CodeLines:      []core.CodeLine{},
			Comments:       []core.LineComment{},
			RefactoredCode: "",
		}, true
	}

	result, err := p.run(ctx, code)
	if err != nil {
		p.logger.Error("review pipeline failed", "error", err)
		return p.degraded(code, err), false
	}
	return result, true
}

func (p *Pipeline) run(ctx context.Context, code string) (core.ReviewResult, error) {
	p.logger.Info("detecting programming language")
	language, err := p.detectLanguage(ctx, code)
	if err != nil {
		return core.ReviewResult{}, fmt.Errorf("language detection: %w", err)
	}
	p.logger.Info("detected language", "language", language)

	p.logger.Info("analyzing code for review")
	comments, err := p.reviewCode(ctx, code, language)
	if err != nil {
		return core.ReviewResult{}, fmt.Errorf("review generation: %w", err)
	}

	lines := core.NumberLines(code)
	for _, c := range comments {
		// Out-of-range line numbers are kept in the output but tag nothing.
		if c.LineNumber > 0 && c.LineNumber <= len(lines) {
			lines[c.LineNumber-1].HasReview = true
		}
	}

	p.logger.Info("generating refactoring suggestions")
	refactored, err := p.refactor(ctx, code, language, comments)
	if err != nil {
		return core.ReviewResult{}, fmt.Errorf("refactor generation: %w", err)
	}

	return core.ReviewResult{
		Language:       language,
		CodeLines:      lines,
		Comments:       comments,
		RefactoredCode: refactored,
	}, nil
}

// detectLanguage is stage A. The expected output is free text, so the only
// post-processing is a trim.
func (p *Pipeline) detectLanguage(ctx context.Context, code string) (string, error) {
	prompt, err := p.prompts.Render(llm.LanguageDetectionPrompt, llm.DefaultProvider, map[string]string{
		"Code": code,
	})
	if err != nil {
		return "", err
	}
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// reviewCode is stage B. The model gets line-tagged code and must answer with
// the strict reviews JSON; one repair pass re-prompts the model to reformat
// its own malformed output before the stage fails.
func (p *Pipeline) reviewCode(ctx context.Context, code, language string) ([]core.LineComment, error) {
	prompt, err := p.prompts.Render(llm.CodeReviewPrompt, llm.DefaultProvider, map[string]string{
		"Language":   language,
		"TaggedCode": core.TagLines(code),
	})
	if err != nil {
		return nil, err
	}

	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	comments, parseErr := llm.ParseReviewList(raw)
	if parseErr == nil {
		return comments, nil
	}
	p.logger.Warn("review output failed schema validation, attempting repair", "error", parseErr)

	fixPrompt, err := p.prompts.Render(llm.FormatFixPrompt, llm.DefaultProvider, map[string]string{
		"Output": raw,
	})
	if err != nil {
		return nil, err
	}
	fixed, err := p.complete(ctx, fixPrompt)
	if err != nil {
		return nil, err
	}
	comments, repairErr := llm.ParseReviewList(fixed)
	if repairErr != nil {
		return nil, fmt.Errorf("unrepairable review output: %w (original error: %v)", repairErr, parseErr)
	}
	return comments, nil
}

// refactor is stage C: original code, detected language, and a bullet list of
// every review comment go in; a fenced code block comes out.
func (p *Pipeline) refactor(ctx context.Context, code, language string, comments []core.LineComment) (string, error) {
	var bullets strings.Builder
	for _, c := range comments {
		fmt.Fprintf(&bullets, "- %s\n", c.Review)
	}

	prompt, err := p.prompts.Render(llm.CodeRefactorPrompt, llm.DefaultProvider, map[string]string{
		"Language": language,
		"Code":     code,
		"Reviews":  bullets.String(),
	})
	if err != nil {
		return "", err
	}
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return llm.ExtractCodeBlock(raw, language), nil
}

// complete runs one completion call under the per-stage deadline.
func (p *Pipeline) complete(ctx context.Context, prompt string) (string, error) {
	if p.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stageTimeout)
		defer cancel()
	}
	return p.model.Complete(ctx, prompt)
}

// degraded builds the failure-path result: the error description becomes the
// single comment on line 1 and the original code stands in for the refactor.
func (p *Pipeline) degraded(code string, cause error) core.ReviewResult {
	firstLine, _, _ := strings.Cut(code, "\n")
	return core.ReviewResult{
		Language:  "unknown",
		CodeLines: core.NumberLines(code),
		Comments: []core.LineComment{
			{
				LineNumber: 1,
				Code:       "1: " + firstLine,
				Review:     cause.Error(),
			},
		},
		RefactoredCode: code,
	}
}
