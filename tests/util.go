package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/user"
)

// NewValidator returns a validator with every custom tag and translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	persona.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateTeacher creates an active teacher whose password is "password".
func CreateTeacher(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Teacher "+uname, uname, uname+"@alloqly.test", "password", []string{user.RoleTeacher}, true)
}

// CreateStudent creates an active student whose password is "password".
func CreateStudent(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Student "+uname, uname, uname+"@alloqly.test", "password", []string{user.RoleStudent}, true)
}

func SetPersona(t *testing.T, repo profile.Repository, userID string, p persona.Persona, accommodations ...string) profile.Profile {
	prof, err := repo.UpsertProfile(context.Background(), profile.Profile{
		UserID:         userID,
		Persona:        p,
		Accommodations: accommodations,
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SetPersona() failed: %v", err)
	}
	return prof
}

func CreateClass(t *testing.T, repo class.Repository, teacherID, name string) class.Class {
	now := time.Now().UTC()
	cls, err := repo.CreateClass(context.Background(), class.Class{
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func Enroll(t *testing.T, repo class.Repository, classID, studentID string) {
	err := repo.CreateEnrollment(context.Background(), class.Enrollment{
		ClassID:   classID,
		StudentID: studentID,
		JoinedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}
