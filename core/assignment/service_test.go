package assignment_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/prompt"
	"github.com/alloqly/alloqly/core/user"
	emailsvc "github.com/alloqly/alloqly/services/email"
	inmemdb "github.com/alloqly/alloqly/storage/database/inmem"
	testutil "github.com/alloqly/alloqly/tests"
)

const remodeled = `{"title": "Fractions (easy read)", "content": "Step 1: add the fractions.", ` +
	`"accommodations": ["Short steps"], "teacher_notes": "Split into steps"}`

type fixture struct {
	ctx      context.Context
	llm      *testutil.LLMStub
	svc      *assignment.Service
	users    user.Repository
	classes  class.Repository
	profiles profile.Repository
	teacher  user.User
	cls      class.Class
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	f := fixture{
		ctx:      context.Background(),
		llm:      testutil.NewLLMStub(),
		users:    inmemdb.NewUserRepository(db),
		classes:  inmemdb.NewClassRepository(db),
		profiles: inmemdb.NewProfileRepository(db),
	}
	classSvc := class.NewService(f.classes, emailsvc.NewConsoleServiceMock(conf), conf)
	f.svc = assignment.NewService(
		inmemdb.NewAssignmentRepository(db),
		f.llm,
		classSvc,
		profile.NewService(f.profiles),
		extract.NewExtractor(conf.Uploads),
		conf,
	)
	f.teacher = testutil.CreateTeacher(t, f.users, "kamara")
	f.cls = testutil.CreateClass(t, f.classes, f.teacher.ID, "Math 6B")
	return f
}

func (f fixture) create(t *testing.T) assignment.Assignment {
	a, err := f.svc.Create(f.ctx, f.teacher.ID, assignment.NewAssignment{
		ClassID:      f.cls.ID,
		Title:        "Fractions",
		Instructions: "Answer every question.",
		Content:      "  Add 1/2 and 1/4.\r\n\r\n\r\n\r\nShow your work.  ",
	})
	require.NoError(t, err)
	return a
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	a := f.create(t)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, f.teacher.ID, a.TeacherID)
	assert.Equal(t, "Add 1/2 and 1/4.\n\nShow your work.", a.Content)
	assert.Equal(t, string(extract.Text), a.SourceFormat)
	assert.Equal(t, assignment.DefaultMaxScore, a.MaxScore)

	_, err := f.svc.Create(f.ctx, f.teacher.ID, assignment.NewAssignment{ClassID: f.cls.ID, Title: "Blank", Content: " \n "})
	assert.Equal(t, extract.ErrEmptyDocument, errors.Cause(err))
}

func TestService_Update(t *testing.T) {
	f := setup(t)
	a := f.create(t)

	title, maxScore := "Fractions II", 20
	due := time.Date(2030, 1, 2, 15, 0, 0, 0, time.FixedZone("CAT", 2*3600))
	updated, err := f.svc.Update(f.ctx, a, assignment.UpdateAssignment{Title: &title, MaxScore: &maxScore, DueAt: &due})
	require.NoError(t, err)
	assert.Equal(t, "Fractions II", updated.Title)
	assert.Equal(t, 20, updated.MaxScore)
	require.NotNil(t, updated.DueAt)
	assert.Equal(t, time.UTC, updated.DueAt.Location())
	assert.True(t, due.Equal(*updated.DueAt))

	updated, err = f.svc.Update(f.ctx, updated, assignment.UpdateAssignment{ClearDueAt: true})
	require.NoError(t, err)
	assert.Nil(t, updated.DueAt)

	found, err := f.svc.Query(f.ctx, assignment.QueryFilter{ClassID: f.cls.ID, Search: " fractions II "}, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, f.svc.Delete(f.ctx, a.ID))
	_, err = f.svc.GetByID(f.ctx, a.ID)
	assert.Equal(t, assignment.ErrNotFound, errors.Cause(err))
}

func TestService_TargetPersonas(t *testing.T) {
	f := setup(t)
	a := f.create(t)

	personas, err := f.svc.TargetPersonas(f.ctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, []persona.Persona{persona.Generic}, personas, "empty class falls back to generic")

	amina := testutil.CreateStudent(t, f.users, "amina")
	tendai := testutil.CreateStudent(t, f.users, "tendai")
	testutil.Enroll(t, f.classes, f.cls.ID, amina.ID)
	testutil.Enroll(t, f.classes, f.cls.ID, tendai.ID)
	testutil.SetPersona(t, f.profiles, amina.ID, persona.Dyslexia)
	testutil.SetPersona(t, f.profiles, tendai.ID, persona.ADHD)

	personas, err = f.svc.TargetPersonas(f.ctx, a, nil)
	require.NoError(t, err)
	assert.Equal(t, []persona.Persona{persona.ADHD, persona.Dyslexia}, personas)

	personas, err = f.svc.TargetPersonas(f.ctx, a, []string{"visual", "VISUAL", "hearing"})
	require.NoError(t, err)
	assert.Equal(t, []persona.Persona{persona.Visual, persona.Hearing}, personas)

	_, err = f.svc.TargetPersonas(f.ctx, a, []string{"robot"})
	assert.Equal(t, persona.ErrUnknown, errors.Cause(err))
}

func TestService_Remodel(t *testing.T) {
	f := setup(t)
	a := f.create(t)
	f.llm.Queue(remodeled, "```json\n"+remodeled+"\n```")

	variants, err := f.svc.Remodel(f.ctx, a, []persona.Persona{persona.Dyslexia, persona.ADHD})
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, persona.Dyslexia, variants[0].Persona)
	assert.Equal(t, "Fractions (easy read)", variants[0].Title)
	assert.Equal(t, "Step 1: add the fractions.", variants[0].Content)
	assert.Equal(t, []string{"Short steps"}, variants[0].Accommodations)
	assert.Equal(t, "test-model", variants[0].Model)

	reqs := f.llm.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, prompt.FeatureRemodel, reqs[0].Feature)
	assert.True(t, reqs[0].JSON)
	assert.Contains(t, reqs[0].Prompt, "Add 1/2 and 1/4.")

	// remodeling again replaces the stored variant
	f.llm.Queue(`{"content": "New text"}`)
	again, err := f.svc.Remodel(f.ctx, a, []persona.Persona{persona.Dyslexia})
	require.NoError(t, err)
	assert.Equal(t, variants[0].ID, again[0].ID)

	stored, err := f.svc.Variants(f.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	v, err := f.svc.GetVariant(f.ctx, a.ID, persona.Dyslexia)
	require.NoError(t, err)
	assert.Equal(t, "New text", v.Content)
}

func TestService_Remodel_Failure(t *testing.T) {
	f := setup(t)
	a := f.create(t)
	f.llm.Queue(remodeled, `{"title": "no content"}`)

	variants, err := f.svc.Remodel(f.ctx, a, []persona.Persona{persona.Visual, persona.Hearing, persona.Autism})
	require.Error(t, err)
	assert.Equal(t, prompt.ErrMalformedResponse, errors.Cause(err))
	require.Len(t, variants, 1, "variants stored before the failure are returned")
	assert.Equal(t, persona.Visual, variants[0].Persona)

	_, err = f.svc.Remodel(f.ctx, a, []persona.Persona{persona.Autism})
	assert.True(t, core.IsLLMUnavailable(err))
	assert.Len(t, f.llm.Requests(), 3)
}

func TestService_Preview(t *testing.T) {
	f := setup(t)
	amina := testutil.CreateStudent(t, f.users, "amina")
	testutil.SetPersona(t, f.profiles, amina.ID, persona.Dyslexia, "Read aloud")
	f.llm.Queue(remodeled)

	variants, err := f.svc.Preview(f.ctx, assignment.PreviewRemodel{
		Title:     "Poem",
		Content:   "Read the poem.",
		StudentID: amina.ID,
	})
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, persona.Dyslexia, variants[0].Persona)
	assert.Empty(t, variants[0].ID, "previews are not stored")

	reqs := f.llm.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, "Read aloud")

	f.llm.Queue(remodeled)
	variants, err = f.svc.Preview(f.ctx, assignment.PreviewRemodel{Content: "Read the poem."})
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, persona.Generic, variants[0].Persona)
}

func TestService_UpdateAndDeleteVariant(t *testing.T) {
	f := setup(t)
	a := f.create(t)
	f.llm.Queue(remodeled)
	variants, err := f.svc.Remodel(f.ctx, a, []persona.Persona{persona.Autism})
	require.NoError(t, err)

	content := "Edited by the teacher"
	v, err := f.svc.UpdateVariant(f.ctx, variants[0], assignment.UpdateVariant{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, content, v.Content)
	assert.Equal(t, "Fractions (easy read)", v.Title)

	require.NoError(t, f.svc.DeleteVariant(f.ctx, a.ID, persona.Autism))
	_, err = f.svc.GetVariant(f.ctx, a.ID, persona.Autism)
	assert.Equal(t, assignment.ErrVariantNotFound, errors.Cause(err))
	err = f.svc.DeleteVariant(f.ctx, a.ID, persona.Autism)
	assert.Equal(t, assignment.ErrVariantNotFound, errors.Cause(err))
}

func TestService_ViewFor(t *testing.T) {
	f := setup(t)
	a := f.create(t)
	amina := testutil.CreateStudent(t, f.users, "amina")
	testutil.SetPersona(t, f.profiles, amina.ID, persona.ADHD)

	view, err := f.svc.ViewFor(f.ctx, a, amina.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Content, view.Content, "original text without variants")
	assert.Empty(t, view.VariantID)
	assert.Equal(t, persona.ADHD, view.Persona)

	f.llm.Queue(`{"title": "Generic", "content": "Generic text"}`, `{"content": "ADHD text"}`)
	variants, err := f.svc.Remodel(f.ctx, a, []persona.Persona{persona.Generic})
	require.NoError(t, err)

	view, err = f.svc.ViewFor(f.ctx, a, amina.ID)
	require.NoError(t, err)
	assert.Equal(t, "Generic text", view.Content, "generic variant as fallback")
	assert.Equal(t, variants[0].ID, view.VariantID)

	_, err = f.svc.Remodel(f.ctx, a, []persona.Persona{persona.ADHD})
	require.NoError(t, err)
	view, err = f.svc.ViewFor(f.ctx, a, amina.ID)
	require.NoError(t, err)
	assert.Equal(t, "ADHD text", view.Content)
	assert.Equal(t, a.Title, view.Title, "variants without title keep the original one")
}

func TestNewAssignment_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	na := assignment.NewAssignment{ClassID: " c1 ", Title: " Essay ", Content: "Write."}
	require.NoError(t, na.Validate(validate))
	assert.Equal(t, "c1", na.ClassID)
	assert.Equal(t, "Essay", na.Title)
	assert.Equal(t, assignment.DefaultMaxScore, na.MaxScore)

	na = assignment.NewAssignment{ClassID: "c1", Title: "Essay", Content: "Write.", MaxScore: 5000}
	assert.Error(t, na.Validate(validate))

	rr := assignment.RemodelRequest{Personas: []string{" ADHD", "adhd", "robot"}}
	assert.Error(t, rr.Validate(validate))
	rr = assignment.RemodelRequest{Personas: []string{" ADHD", "adhd"}}
	require.NoError(t, rr.Validate(validate))
	assert.Equal(t, []string{"adhd"}, rr.Personas)
}
