package core

import (
	"fmt"
	"strings"
)

// CodeLine is one line of the submitted source annotated with whether any
// review comment landed on it.
type CodeLine struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
	HasReview  bool   `json:"has_review"`
}

// ReviewResult is the full output of the review pipeline for one submission.
type ReviewResult struct {
	Language       string        `json:"language"`
	CodeLines      []CodeLine    `json:"code_lines"`
	Comments       []LineComment `json:"reviews"`
	RefactoredCode string        `json:"refactored_code"`
}

// NumberLines splits code into 1-indexed CodeLine entries with no review
// markers set.
func NumberLines(code string) []CodeLine {
	if code == "" {
		return nil
	}
	raw := strings.Split(strings.TrimSuffix(code, "\n"), "\n")
	lines := make([]CodeLine, len(raw))
	for i, content := range raw {
		lines[i] = CodeLine{LineNumber: i + 1, Content: content}
	}
	return lines
}

// TagLines renders code with each line prefixed by its 1-based number, the
// form the review prompt embeds so the model can cite exact lines.
func TagLines(code string) string {
	raw := strings.Split(strings.TrimSuffix(code, "\n"), "\n")
	var b strings.Builder
	for i, line := range raw {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", i+1, line)
	}
	return b.String()
}
