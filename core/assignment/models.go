package assignment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/persona"
)

const DefaultMaxScore = 100

type Assignment struct {
	ID             string     `json:"id" db:"id"`
	ClassID        string     `json:"class_id" db:"class_id"`
	TeacherID      string     `json:"teacher_id" db:"teacher_id"`
	Title          string     `json:"title" db:"title"`
	Instructions   string     `json:"instructions" db:"instructions"`
	Content        string     `json:"content" db:"content"`
	SourceFilename string     `json:"source_filename" db:"source_filename"`
	SourceFormat   string     `json:"source_format" db:"source_format"`
	DueAt          *time.Time `json:"due_at" db:"due_at"`
	MaxScore       int        `json:"max_score" db:"max_score"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLate reports whether work handed in at t is past the due date.
func (a Assignment) IsLate(t time.Time) bool {
	return a.DueAt != nil && t.After(*a.DueAt)
}

// Variant is the remodeled text of an Assignment for one persona.
type Variant struct {
	ID             string          `json:"id" db:"id"`
	AssignmentID   string          `json:"assignment_id" db:"assignment_id"`
	Persona        persona.Persona `json:"persona" db:"persona"`
	Title          string          `json:"title" db:"title"`
	Content        string          `json:"content" db:"content"`
	Accommodations []string        `json:"accommodations" db:"accommodations"`
	TeacherNotes   string          `json:"teacher_notes" db:"teacher_notes"`
	Model          string          `json:"model" db:"model"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// View is an Assignment as a student reads it: the text of their persona's variant when there is one.
type View struct {
	ID             string          `json:"id"`
	ClassID        string          `json:"class_id"`
	Title          string          `json:"title"`
	Instructions   string          `json:"instructions"`
	Content        string          `json:"content"`
	DueAt          *time.Time      `json:"due_at"`
	MaxScore       int             `json:"max_score"`
	Persona        persona.Persona `json:"persona"`
	VariantID      string          `json:"variant_id,omitempty"`
	Accommodations []string        `json:"accommodations"`
}

func newView(a Assignment, p persona.Persona, v *Variant) View {
	view := View{
		ID:             a.ID,
		ClassID:        a.ClassID,
		Title:          a.Title,
		Instructions:   a.Instructions,
		Content:        a.Content,
		DueAt:          a.DueAt,
		MaxScore:       a.MaxScore,
		Persona:        p,
		Accommodations: []string{},
	}
	if v != nil {
		view.VariantID = v.ID
		view.Content = v.Content
		if v.Title != "" {
			view.Title = v.Title
		}
		if v.Accommodations != nil {
			view.Accommodations = v.Accommodations
		}
	}
	return view
}

// NewAssignment contains information needed to create a new Assignment.
// Content is either pasted text or the text extracted from SourceFilename.
type NewAssignment struct {
	ClassID        string     `json:"class_id" form:"class_id" validate:"required"`
	Title          string     `json:"title" form:"title" validate:"required,max=200"`
	Instructions   string     `json:"instructions" form:"instructions" validate:"max=5000"`
	Content        string     `json:"content" form:"-" validate:"required"`
	DueAt          *time.Time `json:"due_at" form:"-"`
	MaxScore       int        `json:"max_score" form:"max_score" validate:"omitempty,min=1,max=1000"`
	SourceFilename string     `json:"-" form:"-"`
	SourceFormat   string     `json:"-" form:"-"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.ClassID = core.CleanString(na.ClassID)
	na.Title = core.CleanString(na.Title)
	na.Instructions = core.CleanString(na.Instructions)
	if na.MaxScore == 0 {
		na.MaxScore = DefaultMaxScore
	}
	return validate.Struct(na)
}

// UpdateAssignment defines what information may be provided to modify an existing Assignment.
// Nil fields are left unchanged.
type UpdateAssignment struct {
	Title        *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Instructions *string    `json:"instructions" validate:"omitempty,max=5000"`
	Content      *string    `json:"content" validate:"omitempty,notblank"`
	DueAt        *time.Time `json:"due_at"`
	ClearDueAt   bool       `json:"clear_due_at"`
	MaxScore     *int       `json:"max_score" validate:"omitempty,min=1,max=1000"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		*ua.Title = core.CleanString(*ua.Title)
	}
	if ua.Instructions != nil {
		*ua.Instructions = core.CleanString(*ua.Instructions)
	}
	return validate.Struct(ua)
}

type QueryFilter struct {
	ClassID   string
	ClassIDs  []string
	TeacherID string
	Search    string
}

// RemodelRequest selects the personas to remodel an assignment for.
// No persona means the personas of the students enrolled in the class.
type RemodelRequest struct {
	Personas []string `json:"personas" validate:"omitempty,max=6,dive,persona"`
}

func (rr *RemodelRequest) Validate(validate *validator.Validate) error {
	rr.Personas = core.CleanStrings(rr.Personas, true /* lower */)
	return validate.Struct(rr)
}

// PreviewRemodel is pasted text remodeled without being stored.
// StudentID optionally tailors the prompt to one student's profile.
type PreviewRemodel struct {
	Title        string   `json:"title" validate:"max=200"`
	Instructions string   `json:"instructions" validate:"max=5000"`
	Content      string   `json:"content" validate:"required,notblank"`
	Personas     []string `json:"personas" validate:"omitempty,max=6,dive,persona"`
	StudentID    string   `json:"student_id"`
}

func (pr *PreviewRemodel) Validate(validate *validator.Validate) error {
	pr.Title = core.CleanString(pr.Title)
	pr.Instructions = core.CleanString(pr.Instructions)
	pr.Personas = core.CleanStrings(pr.Personas, true /* lower */)
	pr.StudentID = core.CleanString(pr.StudentID)
	return validate.Struct(pr)
}

// UpdateVariant defines what a teacher may edit on a Variant. Nil fields are left unchanged.
type UpdateVariant struct {
	Title          *string  `json:"title" validate:"omitempty,max=200"`
	Content        *string  `json:"content" validate:"omitempty,notblank"`
	Accommodations []string `json:"accommodations" validate:"omitempty,max=20,dive,max=200"`
	TeacherNotes   *string  `json:"teacher_notes" validate:"omitempty,max=5000"`
}

func (uv *UpdateVariant) Validate(validate *validator.Validate) error {
	if uv.Title != nil {
		*uv.Title = core.CleanString(*uv.Title)
	}
	uv.Accommodations = core.CleanStrings(uv.Accommodations)
	return validate.Struct(uv)
}
