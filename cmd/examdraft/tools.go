package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examdraft/internal/export"
	"github.com/pavelanni/examdraft/internal/extract"
	"github.com/pavelanni/examdraft/internal/handler"
	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/prompts"
	"github.com/pavelanni/examdraft/internal/rubric"
)

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <files...>",
		Short: "Print the text extracted from teaching materials",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExtract,
	}
	f := cmd.Flags()
	f.Int("extract-workers", extract.DefaultConcurrency, "Files extracted concurrently")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Parse a pasted review table and enforce the scoring rules",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParse,
	}
	f := cmd.Flags()
	f.Bool("json", false, "Print the table as JSON (columns and rows in table order)")
	f.String("apportion", "remainder-to-max", "Score rounding policy (remainder-to-max, largest-remainder)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func exportXLSXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-xlsx [file|-]",
		Short: "Write an enforced review table as a spreadsheet",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExportXLSX,
	}
	f := cmd.Flags()
	f.String("apportion", "remainder-to-max", "Score rounding policy (remainder-to-max, largest-remainder)")
	f.StringP("output", "o", "review-table.xlsx", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func promptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render the prompts pasted into the chat assistant",
	}

	review := &cobra.Command{
		Use:   "review <files...>",
		Short: "Render the review-table prompt from teaching materials",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPromptReview,
	}
	addPromptFlags(review)

	questions := &cobra.Command{
		Use:   "questions [table-file|-]",
		Short: "Render the question-set prompt from an approved review table",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPromptQuestions,
	}
	addPromptFlags(questions)
	questions.Flags().String("apportion", "remainder-to-max", "Score rounding policy (remainder-to-max, largest-remainder)")

	cmd.AddCommand(review, questions)
	return cmd
}

func addPromptFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("grade", prompts.Grades[2], "Grade level")
	f.String("subject", prompts.Subjects[1], "Subject")
	f.String("mode", "A", "Difficulty mode (A, B, C or the full label)")
	f.StringSlice("types", nil, "Question types (default: every type offered for the subject)")
	f.Bool("json", false, "Wrap the prompt in a chat completion request body")
	f.String("chat-model", handler.DefaultChatModel, "Model name written into the chat request")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	files, err := readFiles(args)
	if err != nil {
		return err
	}
	text, err := extract.New(v.GetInt("extract-workers")).Extract(cmd.Context(), files)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	slog.Debug("extracted materials", "files", len(files), "chars", len([]rune(text)))

	return writeOutput(cmd, v.GetString("output"), []byte(text+"\n"))
}

func runParse(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	rs, err := readTable(cmd, args, v.GetString("apportion"))
	if err != nil {
		return err
	}

	var out []byte
	if v.GetBool("json") {
		data, err := json.MarshalIndent(rs, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		out = append(data, '\n')
	} else {
		out = []byte(rubric.Markdown(rs))
	}
	return writeOutput(cmd, v.GetString("output"), out)
}

func runExportXLSX(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	rs, err := readTable(cmd, args, v.GetString("apportion"))
	if err != nil {
		return err
	}

	outPath := v.GetString("output")
	w, closeFn, err := openOutput(cmd, outPath)
	if err != nil {
		return err
	}
	if err := export.WriteXLSX(w, rs); err != nil {
		_ = closeFn()
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	if err := closeFn(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	slog.Info("wrote spreadsheet", "path", outPath, "rows", rs.Len())
	return nil
}

func runPromptReview(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)

	meta, err := promptMeta(cmd)
	if err != nil {
		return err
	}
	files, err := readFiles(args)
	if err != nil {
		return err
	}
	content, err := extract.New(0).Extract(cmd.Context(), files)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	prompt, err := prompts.BuildReviewPrompt(meta, content)
	if err != nil {
		return fmt.Errorf("build review prompt: %w", err)
	}
	return writePrompt(cmd, prompt)
}

func runPromptQuestions(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	meta, err := promptMeta(cmd)
	if err != nil {
		return err
	}
	rs, err := readTable(cmd, args, v.GetString("apportion"))
	if err != nil {
		return err
	}
	prompt, err := prompts.BuildQuestionPrompt(meta, rs)
	if err != nil {
		return fmt.Errorf("build question prompt: %w", err)
	}
	return writePrompt(cmd, prompt)
}

// promptMeta reads and validates the exam parameters shared by both prompts.
func promptMeta(cmd *cobra.Command) (model.ExamMeta, error) {
	v := viperForCmd(cmd)

	meta := model.ExamMeta{
		Grade:   v.GetString("grade"),
		Subject: v.GetString("subject"),
		Mode:    resolveMode(v.GetString("mode")),
		Types:   v.GetStringSlice("types"),
	}
	if !prompts.IsOneOf(meta.Grade, prompts.Grades) {
		return meta, fmt.Errorf("unknown grade %q (valid: %s)", meta.Grade, strings.Join(prompts.Grades, ", "))
	}
	if !prompts.IsOneOf(meta.Subject, prompts.Subjects) {
		return meta, fmt.Errorf("unknown subject %q (valid: %s)", meta.Subject, strings.Join(prompts.Subjects, ", "))
	}
	if meta.Mode == "" {
		return meta, fmt.Errorf("unknown mode %q (valid: A, B, C)", v.GetString("mode"))
	}
	if len(meta.Types) == 0 {
		meta.Types = prompts.QuestionTypes(meta.Subject)
	}
	return meta, nil
}

// resolveMode accepts a mode letter or its full label.
func resolveMode(s string) string {
	s = strings.TrimSpace(s)
	if prompts.IsOneOf(s, prompts.Modes) {
		return s
	}
	for _, m := range prompts.Modes {
		if strings.HasPrefix(m, "模式 "+strings.ToUpper(s)+"：") {
			return m
		}
	}
	return ""
}

func writePrompt(cmd *cobra.Command, prompt string) error {
	v := viperForCmd(cmd)

	out := []byte(prompt + "\n")
	if v.GetBool("json") {
		data, err := prompts.ChatRequestJSON(v.GetString("chat-model"), prompt)
		if err != nil {
			return err
		}
		out = append(data, '\n')
	}
	return writeOutput(cmd, v.GetString("output"), out)
}

// readTable parses the table in args[0], or stdin when args is empty or "-",
// and applies the scoring rules.
func readTable(cmd *cobra.Command, args []string, apportion string) (*rubric.RecordSet, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}

	rs, err := rubric.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse table: %w", err)
	}
	enforcer := rubric.Enforcer{Apportion: rubric.ParseApportion(apportion)}
	return enforcer.Enforce(rs), nil
}

func readFiles(paths []string) ([]extract.File, error) {
	files := make([]extract.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, extract.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// openOutput returns stdout for "" or "-", otherwise a created file.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	w, closeFn, err := openOutput(cmd, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = closeFn()
		return fmt.Errorf("write output: %w", err)
	}
	return closeFn()
}
