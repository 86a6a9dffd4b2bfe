package profile

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/persona"
)

// Profile is the learning profile of a student: the persona their assignments are remodeled for,
// plus the accommodations and notes the teacher or student recorded.
type Profile struct {
	UserID         string          `json:"user_id" db:"user_id"`
	Persona        persona.Persona `json:"persona" db:"persona"`
	Accommodations []string        `json:"accommodations" db:"accommodations"`
	Notes          string          `json:"notes" db:"notes"`
	GradeLevel     string          `json:"grade_level" db:"grade_level"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Default is the profile of a student who never set one.
func Default(userID string) Profile {
	return Profile{
		UserID:         userID,
		Persona:        persona.Generic,
		Accommodations: []string{},
	}
}

// UpdateProfile defines what information may be provided to set a Profile.
type UpdateProfile struct {
	Persona        string   `json:"persona" validate:"required,persona"`
	Accommodations []string `json:"accommodations" validate:"omitempty,max=20,dive,max=200"`
	Notes          string   `json:"notes" validate:"max=2000"`
	GradeLevel     string   `json:"grade_level" validate:"max=32"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Persona = core.CleanString(up.Persona, true /* lower */)
	up.Accommodations = core.CleanStrings(up.Accommodations)
	up.Notes = core.CleanString(up.Notes)
	up.GradeLevel = core.CleanString(up.GradeLevel)
	return validate.Struct(up)
}
