package class

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alloqly/alloqly/core"
)

// Invitation statuses
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
	InvitationRevoked  = "revoked"
)

type Class struct {
	ID                string     `json:"id" db:"id"`
	Name              string     `json:"name" db:"name"`
	Subject           string     `json:"subject" db:"subject"`
	Description       string     `json:"description" db:"description"`
	GradeLevel        string     `json:"grade_level" db:"grade_level"`
	TeacherID         string     `json:"teacher_id" db:"teacher_id"`
	JoinCode          string     `json:"join_code,omitempty" db:"join_code"`
	JoinCodeExpiresAt *time.Time `json:"join_code_expires_at,omitempty" db:"join_code_expires_at"`
	StudentCount      int        `json:"student_count" db:"student_count"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// JoinCodeActive reports whether the class has a join code valid at t.
func (c Class) JoinCodeActive(t time.Time) bool {
	return c.JoinCode != "" && c.JoinCodeExpiresAt != nil && t.Before(*c.JoinCodeExpiresAt)
}

// Public returns a copy of c without teacher-only fields.
func (c Class) Public() Class {
	c.JoinCode = ""
	c.JoinCodeExpiresAt = nil
	return c
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name        string `json:"name" validate:"required,max=120"`
	Subject     string `json:"subject" validate:"max=120"`
	Description string `json:"description" validate:"max=2000"`
	GradeLevel  string `json:"grade_level" validate:"max=32"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Subject = core.CleanString(nc.Subject)
	nc.Description = core.CleanString(nc.Description)
	nc.GradeLevel = core.CleanString(nc.GradeLevel)
	return validate.Struct(nc)
}

// UpdateClass defines what information may be provided to modify an existing Class.
// Nil fields are left unchanged.
type UpdateClass struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=120"`
	Subject     *string `json:"subject" validate:"omitempty,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	GradeLevel  *string `json:"grade_level" validate:"omitempty,max=32"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{uc.Name, uc.Subject, uc.Description, uc.GradeLevel} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(uc)
}

func (uc UpdateClass) apply(c Class) Class {
	if uc.Name != nil {
		c.Name = *uc.Name
	}
	if uc.Subject != nil {
		c.Subject = *uc.Subject
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.GradeLevel != nil {
		c.GradeLevel = *uc.GradeLevel
	}
	return c
}

type QueryFilter struct {
	TeacherID string
	StudentID string
	Search    string
}

// GetFilter selects a single Class, by ID or else by JoinCode.
type GetFilter struct {
	ID       string
	JoinCode string
}

type Enrollment struct {
	ClassID   string    `json:"class_id" db:"class_id"`
	StudentID string    `json:"student_id" db:"student_id"`
	JoinedAt  time.Time `json:"joined_at" db:"joined_at"`
}

type Invitation struct {
	ID          string     `json:"id" db:"id"`
	ClassID     string     `json:"class_id" db:"class_id"`
	Email       string     `json:"email" db:"email"`
	Token       string     `json:"-" db:"token"`
	Status      string     `json:"status" db:"status"`
	InvitedBy   string     `json:"invited_by" db:"invited_by"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty" db:"responded_at"`
}

// Expired reports whether inv can no longer be answered at t.
func (inv Invitation) Expired(t time.Time) bool {
	return !t.Before(inv.ExpiresAt)
}

// Invite contains the emails a teacher invites to a Class.
type Invite struct {
	Emails []string `json:"emails" validate:"required,min=1,max=100,dive,email"`
}

func (inv *Invite) Validate(validate *validator.Validate) error {
	inv.Emails = core.CleanStrings(inv.Emails, true /* lower */)
	return validate.Struct(inv)
}

type InvitationFilter struct {
	ClassID string
	Email   string
	Status  string
}

// JoinRequest is what a student provides to join a Class by code.
type JoinRequest struct {
	Code string `json:"code" validate:"required,notblank"`
}

func (jr *JoinRequest) Validate(validate *validator.Validate) error {
	jr.Code = NormalizeJoinCode(jr.Code)
	return validate.Struct(jr)
}

// NormalizeJoinCode trims and upper-cases code, dropping inner spaces and dashes.
func NormalizeJoinCode(code string) string {
	code = strings.ToUpper(core.CleanString(code))
	return strings.NewReplacer(" ", "", "-", "").Replace(code)
}
