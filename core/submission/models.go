package submission

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alloqly/alloqly/core"
)

// Statuses
const (
	StatusSubmitted = "submitted"
	StatusGraded    = "graded"
)

// Graders
const (
	GradedByAI      = "ai"
	GradedByTeacher = "teacher"
)

type Submission struct {
	ID             string     `json:"id" db:"id"`
	AssignmentID   string     `json:"assignment_id" db:"assignment_id"`
	StudentID      string     `json:"student_id" db:"student_id"`
	Content        string     `json:"content" db:"content"`
	SourceFilename string     `json:"source_filename" db:"source_filename"`
	Status         string     `json:"status" db:"status"`
	Late           bool       `json:"late" db:"late"`
	Score          *float64   `json:"score" db:"score"`
	Feedback       string     `json:"feedback" db:"feedback"`
	Strengths      []string   `json:"strengths" db:"strengths"`
	Improvements   []string   `json:"improvements" db:"improvements"`
	GradedBy       string     `json:"graded_by" db:"graded_by"`
	GradedAt       *time.Time `json:"graded_at" db:"graded_at"`
	SubmittedAt    time.Time  `json:"submitted_at" db:"submitted_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

func (s Submission) IsGraded() bool {
	return s.Status == StatusGraded
}

// NewSubmission is the work a student hands in: pasted text, or the text extracted from SourceFilename.
type NewSubmission struct {
	Content        string `json:"content" validate:"required,notblank"`
	SourceFilename string `json:"-"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

// Grade is a teacher's grade, set by hand or overriding the AI one.
type Grade struct {
	Score        *float64 `json:"score" validate:"required,min=0"`
	Feedback     string   `json:"feedback" validate:"max=10000"`
	Strengths    []string `json:"strengths" validate:"omitempty,max=20,dive,max=500"`
	Improvements []string `json:"improvements" validate:"omitempty,max=20,dive,max=500"`
}

// Validate checks g against the maximum score of the graded assignment.
func (g *Grade) Validate(validate *validator.Validate, maxScore int) error {
	g.Feedback = core.CleanString(g.Feedback)
	g.Strengths = core.CleanStrings(g.Strengths)
	g.Improvements = core.CleanStrings(g.Improvements)
	if err := validate.Struct(g); err != nil {
		return err
	}
	if *g.Score > float64(maxScore) {
		return core.NewFieldError("score", "score cannot be greater than the maximum score of the assignment")
	}
	return nil
}

type QueryFilter struct {
	AssignmentID string
	StudentID    string
	Status       string
}

// GetFilter selects a single Submission, by ID or else by (AssignmentID, StudentID).
type GetFilter struct {
	ID           string
	AssignmentID string
	StudentID    string
}
