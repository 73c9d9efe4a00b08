// Package workflow models the exam drafting flow as an explicit state machine.
// A Session is a plain value; Machine.Apply computes the next Session from the
// current one and a user Action without touching any shared state.
package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/rubric"
)

// Phase is a step of the drafting flow.
type Phase string

const (
	PhaseUpload         Phase = "upload"
	PhaseReviewPrompt   Phase = "review_prompt"
	PhaseReviewTable    Phase = "review_table"
	PhaseQuestionPrompt Phase = "question_prompt"
)

// Step returns the label shown to teachers ("1", "1.5", "2", "3").
func (p Phase) Step() string {
	switch p {
	case PhaseReviewPrompt:
		return "1.5"
	case PhaseReviewTable:
		return "2"
	case PhaseQuestionPrompt:
		return "3"
	default:
		return "1"
	}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseUpload, PhaseReviewPrompt, PhaseReviewTable, PhaseQuestionPrompt:
		return true
	}
	return false
}

var (
	ErrInvalidTransition = errors.New("action not allowed in current phase")
	ErrIncompleteMeta    = errors.New("grade, subject, mode and at least one question type are required")
	ErrNoContent         = errors.New("no teaching material text")
	ErrNoTable           = errors.New("no review table")
)

// Session is the state of one drafting flow.
type Session struct {
	ID        string            `json:"id"`
	UserID    int64             `json:"user_id"`
	Phase     Phase             `json:"phase"`
	Meta      model.ExamMeta    `json:"meta"`
	Content   string            `json:"content"`
	Table     *rubric.RecordSet `json:"table,omitempty"`
	Exam      string            `json:"exam,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// New starts a session in the upload phase.
func New(userID int64) Session {
	return Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Phase:     PhaseUpload,
		UpdatedAt: time.Now(),
	}
}

// Action is a user step submitted to Machine.Apply.
type Action interface {
	Name() string
}

type (
	// ExtractContent replaces the material text with freshly extracted text.
	ExtractContent struct{ Text string }
	// EditContent stores the teacher's edits to the material text.
	EditContent struct{ Text string }
	// GenerateReviewPrompt fixes the exam parameters and moves to the review prompt.
	GenerateReviewPrompt struct{ Meta model.ExamMeta }
	// ConfirmReviewPrompt signals the review table was obtained from the chat.
	ConfirmReviewPrompt struct{}
	// PasteTable parses and enforces the pasted review table.
	PasteTable struct{ Markdown string }
	// EditTable replaces the table with the teacher's edited grid and re-enforces it.
	EditTable struct{ Table *rubric.RecordSet }
	// Back returns to the previous phase.
	Back struct{}
	// GenerateQuestionPrompt moves on to the question-set prompt.
	GenerateQuestionPrompt struct{}
	// PasteExam keeps the exam text returned by the chat.
	PasteExam struct{ Text string }
	// Reset clears the session.
	Reset struct{}
)

func (ExtractContent) Name() string         { return "extract_content" }
func (EditContent) Name() string            { return "edit_content" }
func (GenerateReviewPrompt) Name() string   { return "generate_review_prompt" }
func (ConfirmReviewPrompt) Name() string    { return "confirm_review_prompt" }
func (PasteTable) Name() string             { return "paste_table" }
func (EditTable) Name() string              { return "edit_table" }
func (Back) Name() string                   { return "back" }
func (GenerateQuestionPrompt) Name() string { return "generate_question_prompt" }
func (PasteExam) Name() string              { return "paste_exam" }
func (Reset) Name() string                  { return "reset" }

// Machine holds the collaborators transitions need.
type Machine struct {
	Enforcer rubric.Enforcer
	Parser   *rubric.Cache
	Now      func() time.Time
}

// NewMachine returns a machine with a parse cache and the wall clock.
func NewMachine(e rubric.Enforcer) *Machine {
	return &Machine{
		Enforcer: e,
		Parser:   rubric.NewCache(0),
		Now:      time.Now,
	}
}

// Apply returns the session that results from applying a to s. On error the
// returned session equals s.
func (m *Machine) Apply(s Session, a Action) (Session, error) {
	next, err := m.transition(s, a)
	if err != nil {
		return s, err
	}
	next.UpdatedAt = m.now()
	return next, nil
}

func (m *Machine) transition(s Session, a Action) (Session, error) {
	switch act := a.(type) {
	case ExtractContent:
		if err := requirePhase(s, a, PhaseUpload); err != nil {
			return s, err
		}
		s.Content = strings.TrimSpace(act.Text)
		return s, nil

	case EditContent:
		if err := requirePhase(s, a, PhaseUpload); err != nil {
			return s, err
		}
		s.Content = act.Text
		return s, nil

	case GenerateReviewPrompt:
		if err := requirePhase(s, a, PhaseUpload); err != nil {
			return s, err
		}
		if strings.TrimSpace(s.Content) == "" {
			return s, ErrNoContent
		}
		if !act.Meta.Complete() {
			return s, ErrIncompleteMeta
		}
		s.Meta = act.Meta
		s.Meta.Types = append([]string(nil), act.Meta.Types...)
		s.Phase = PhaseReviewPrompt
		return s, nil

	case ConfirmReviewPrompt:
		if err := requirePhase(s, a, PhaseReviewPrompt); err != nil {
			return s, err
		}
		s.Phase = PhaseReviewTable
		return s, nil

	case PasteTable:
		if err := requirePhase(s, a, PhaseReviewTable); err != nil {
			return s, err
		}
		rs, err := m.parse(act.Markdown)
		if err != nil {
			return s, err
		}
		s.Table = m.Enforcer.Enforce(rs)
		return s, nil

	case EditTable:
		if err := requirePhase(s, a, PhaseReviewTable); err != nil {
			return s, err
		}
		if act.Table == nil || s.Table == nil {
			return s, ErrNoTable
		}
		s.Table = m.Enforcer.Enforce(rubric.NewRecordSet(act.Table.Columns, act.Table.Rows))
		return s, nil

	case Back:
		switch s.Phase {
		case PhaseReviewPrompt, PhaseReviewTable:
			s.Phase = PhaseUpload
		case PhaseQuestionPrompt:
			s.Phase = PhaseReviewTable
		default:
			return s, invalid(s, a)
		}
		return s, nil

	case GenerateQuestionPrompt:
		if err := requirePhase(s, a, PhaseReviewTable); err != nil {
			return s, err
		}
		if s.Table == nil {
			return s, ErrNoTable
		}
		s.Phase = PhaseQuestionPrompt
		return s, nil

	case PasteExam:
		if err := requirePhase(s, a, PhaseQuestionPrompt); err != nil {
			return s, err
		}
		s.Exam = act.Text
		return s, nil

	case Reset:
		return Session{ID: s.ID, UserID: s.UserID, Phase: PhaseUpload}, nil
	}

	return s, fmt.Errorf("%w: unknown action %T", ErrInvalidTransition, a)
}

func (m *Machine) parse(text string) (*rubric.RecordSet, error) {
	if m.Parser != nil {
		return m.Parser.Parse(text)
	}
	return rubric.Parse(text)
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func requirePhase(s Session, a Action, want Phase) error {
	if s.Phase != want {
		return invalid(s, a)
	}
	return nil
}

func invalid(s Session, a Action) error {
	return fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, a.Name(), s.Phase)
}
