package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/revuhq/revu/internal/core"
)

// reviewList mirrors the JSON envelope the review prompt demands.
type reviewList struct {
	Reviews []reviewItem `json:"reviews"`
}

type reviewItem struct {
	Code       string `json:"code"`
	Review     string `json:"review"`
	LineNumber *int   `json:"line_number"`
}

// ParseReviewList decodes the review stage's structured output. It strips the
// usual LLM noise (code fences, stray prose around the JSON) and then decodes
// strictly: unknown fields and missing line numbers are schema violations,
// not things to paper over. Callers get a repair shot via FormatFixPrompt
// before treating the error as fatal.
func ParseReviewList(raw string) ([]core.LineComment, error) {
	cleaned := CleanJSONResponse(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()

	var list reviewList
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("parsing review JSON: %w", err)
	}
	if list.Reviews == nil {
		return nil, fmt.Errorf("parsing review JSON: missing \"reviews\" array")
	}

	comments := make([]core.LineComment, 0, len(list.Reviews))
	for i, r := range list.Reviews {
		if r.LineNumber == nil {
			return nil, fmt.Errorf("parsing review JSON: review %d has no line_number", i)
		}
		comments = append(comments, core.LineComment{
			LineNumber: *r.LineNumber,
			Code:       r.Code,
			Review:     r.Review,
		})
	}
	return comments, nil
}

// CleanJSONResponse removes markdown code fences and surrounding prose so the
// payload starts at the first brace and ends at the last one.
func CleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	content = strings.TrimSpace(content)

	// Some models wrap the JSON in a sentence. Cut to the outermost braces.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// ExtractCodeBlock pulls refactored code out of the refactor stage's output.
// If a fenced block is present the first one wins; a leading bare language
// tag matching the detected language is stripped (models frequently emit
// "```\npython\n..."). Without a fence the trimmed raw response is returned
// unchanged.
func ExtractCodeBlock(raw, language string) string {
	if !strings.Contains(raw, "```") {
		return strings.TrimSpace(raw)
	}

	parts := strings.Split(raw, "```")
	if len(parts) < 2 {
		return strings.TrimSpace(raw)
	}
	block := parts[1]

	firstLine, rest, found := strings.Cut(block, "\n")
	if found && language != "" && strings.EqualFold(strings.TrimSpace(firstLine), language) {
		block = rest
	}
	return strings.TrimSpace(block)
}
