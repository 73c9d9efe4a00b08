// Package prompts renders the two prompts the teacher pastes into an external
// chat session: the review-table prompt and the question-set prompt.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/rubric"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	loadOnce      sync.Once
	loadErr       error
	reviewTmpl    *template.Template
	questionsTmpl *template.Template

	blankRuns = regexp.MustCompile(`\n\s*\n`)
)

// ReviewData holds template data for the review-table prompt.
type ReviewData struct {
	Meta        model.ExamMeta
	Content     string
	TotalPoints int
}

// QuestionData holds template data for the question-set prompt.
type QuestionData struct {
	Meta        model.ExamMeta
	Table       string
	TotalPoints int
}

func load() error {
	loadOnce.Do(func() {
		reviewTmpl, loadErr = parse("templates/review_table.tmpl")
		if loadErr != nil {
			return
		}
		questionsTmpl, loadErr = parse("templates/question_set.tmpl")
	})
	return loadErr
}

func parse(name string) (*template.Template, error) {
	content, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildReviewPrompt renders the phase 1 prompt asking for the review table.
func BuildReviewPrompt(meta model.ExamMeta, content string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	if !meta.Complete() {
		return "", errors.New("exam parameters incomplete")
	}

	var buf bytes.Buffer
	err := reviewTmpl.Execute(&buf, ReviewData{
		Meta:        meta,
		Content:     CleanContent(content),
		TotalPoints: rubric.TotalPoints,
	})
	if err != nil {
		return "", fmt.Errorf("render review prompt: %w", err)
	}
	return buf.String(), nil
}

// BuildQuestionPrompt renders the phase 3 prompt that generates the exam from
// the approved review table.
func BuildQuestionPrompt(meta model.ExamMeta, table *rubric.RecordSet) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	if table == nil {
		return "", errors.New("review table missing")
	}

	var buf bytes.Buffer
	err := questionsTmpl.Execute(&buf, QuestionData{
		Meta:        meta,
		Table:       rubric.Markdown(table),
		TotalPoints: rubric.TotalPoints,
	})
	if err != nil {
		return "", fmt.Errorf("render question prompt: %w", err)
	}
	return buf.String(), nil
}

// CleanContent collapses blank-line runs and trims the material text.
func CleanContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}
