package submission_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/assets"
	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/prompt"
	"github.com/alloqly/alloqly/core/submission"
	"github.com/alloqly/alloqly/core/user"
	emailsvc "github.com/alloqly/alloqly/services/email"
	inmemdb "github.com/alloqly/alloqly/storage/database/inmem"
	testutil "github.com/alloqly/alloqly/tests"
)

type fixture struct {
	ctx     context.Context
	llm     *testutil.LLMStub
	mailSvc *emailsvc.ConsoleServiceMock
	svc     *submission.Service
	student user.User
	asgmt   assignment.Assignment
}

func setup(t *testing.T, dueAt *time.Time) fixture {
	conf := core.NewTestConfig()
	require.NoError(t, core.ParseEmailTemplates(assets.FS, conf))
	db := inmemdb.Open()
	users := inmemdb.NewUserRepository(db)
	profiles := inmemdb.NewProfileRepository(db)
	classes := inmemdb.NewClassRepository(db)

	f := fixture{
		ctx:     context.Background(),
		llm:     testutil.NewLLMStub(),
		mailSvc: emailsvc.NewConsoleServiceMock(conf),
	}
	f.svc = submission.NewService(
		inmemdb.NewSubmissionRepository(db),
		f.llm,
		profile.NewService(profiles),
		user.NewService(users, f.mailSvc, conf),
		f.mailSvc,
		extract.NewExtractor(conf.Uploads),
	)

	teacher := testutil.CreateTeacher(t, users, "kamara")
	f.student = testutil.CreateStudent(t, users, "amina")
	testutil.SetPersona(t, profiles, f.student.ID, persona.Dyslexia, "Ignore spelling")
	cls := testutil.CreateClass(t, classes, teacher.ID, "English")
	testutil.Enroll(t, classes, cls.ID, f.student.ID)

	now := time.Now().UTC()
	a, err := inmemdb.NewAssignmentRepository(db).CreateAssignment(f.ctx, assignment.Assignment{
		ClassID:   cls.ID,
		TeacherID: teacher.ID,
		Title:     "My holidays",
		Content:   "Write about your holidays.",
		DueAt:     dueAt,
		MaxScore:  20,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	f.asgmt = a
	return f
}

func (f fixture) submit(t *testing.T, content string) submission.Submission {
	sub, err := f.svc.Submit(f.ctx, f.asgmt, f.student.ID, submission.NewSubmission{Content: content})
	require.NoError(t, err)
	return sub
}

func TestService_Submit(t *testing.T) {
	f := setup(t, nil)

	sub := f.submit(t, "  I went to Victoria Falls.  ")
	assert.Equal(t, "I went to Victoria Falls.", sub.Content)
	assert.Equal(t, submission.StatusSubmitted, sub.Status)
	assert.False(t, sub.Late)
	assert.Nil(t, sub.Score)

	// resubmitting before grading replaces the content
	again := f.submit(t, "I went to Lake Kariba.")
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "I went to Lake Kariba.", again.Content)

	got, err := f.svc.Get(f.ctx, f.asgmt.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, again.Content, got.Content)

	subs, err := f.svc.Query(f.ctx, submission.QueryFilter{AssignmentID: f.asgmt.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	_, err = f.svc.Submit(f.ctx, f.asgmt, f.student.ID, submission.NewSubmission{Content: "\n\t"})
	assert.Equal(t, extract.ErrEmptyDocument, errors.Cause(err))
}

func TestService_Submit_Late(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	f := setup(t, &past)

	sub := f.submit(t, "Sorry, late.")
	assert.True(t, sub.Late)
}

func TestService_AIGrade(t *testing.T) {
	f := setup(t, nil)
	sub := f.submit(t, "I went to Victoria Falls.")
	f.llm.Queue(`{"score": "18/20", "feedback": "Lovely description.", "strengths": ["Vivid"], "improvements": []}`)

	graded, err := f.svc.AIGrade(f.ctx, f.asgmt, sub)
	require.NoError(t, err)
	require.NotNil(t, graded.Score)
	assert.Equal(t, 18.0, *graded.Score)
	assert.Equal(t, submission.StatusGraded, graded.Status)
	assert.Equal(t, submission.GradedByAI, graded.GradedBy)
	assert.Equal(t, "Lovely description.", graded.Feedback)
	assert.Equal(t, []string{"Vivid"}, graded.Strengths)
	assert.Equal(t, []string{}, graded.Improvements)
	assert.NotNil(t, graded.GradedAt)

	reqs := f.llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, prompt.FeatureGrade, reqs[0].Feature)
	assert.Contains(t, reqs[0].Prompt, "I went to Victoria Falls.")
	assert.Contains(t, reqs[0].Prompt, "Ignore spelling")

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, f.student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "18 / 20")

	_, err = f.svc.Submit(f.ctx, f.asgmt, f.student.ID, submission.NewSubmission{Content: "New"})
	assert.Equal(t, submission.ErrAlreadyGraded, errors.Cause(err))
}

func TestService_AIGrade_Failures(t *testing.T) {
	f := setup(t, nil)
	sub := f.submit(t, "I went to Victoria Falls.")

	_, err := f.svc.AIGrade(f.ctx, f.asgmt, sub)
	assert.True(t, core.IsLLMUnavailable(err))

	f.llm.Queue(`{"score": 12}`)
	_, err = f.svc.AIGrade(f.ctx, f.asgmt, sub)
	assert.Equal(t, prompt.ErrMalformedResponse, errors.Cause(err))

	got, err := f.svc.GetByID(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, submission.StatusSubmitted, got.Status, "failures leave the submission ungraded")
	assert.Empty(t, f.mailSvc.SentMessages())
}

func TestService_Grade(t *testing.T) {
	f := setup(t, nil)
	sub := f.submit(t, "I went to Victoria Falls.")
	f.llm.Queue(`{"score": 30, "feedback": "Great."}`)

	graded, err := f.svc.AIGrade(f.ctx, f.asgmt, sub)
	require.NoError(t, err)
	assert.Equal(t, 20.0, *graded.Score, "AI scores are clamped to the maximum")

	// teachers override AI grades
	score := 15.5
	graded, err = f.svc.Grade(f.ctx, f.asgmt, graded, submission.Grade{Score: &score, Feedback: "Good, but short."})
	require.NoError(t, err)
	assert.Equal(t, 15.5, *graded.Score)
	assert.Equal(t, submission.GradedByTeacher, graded.GradedBy)
	assert.Equal(t, []string{}, graded.Strengths)
	assert.Len(t, f.mailSvc.SentMessages(), 2)

	_, err = f.svc.GetByID(f.ctx, "")
	assert.Equal(t, submission.ErrNotFound, errors.Cause(err))
}

func TestGrade_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	score := 12.0
	g := submission.Grade{Score: &score, Feedback: "  ok  ", Strengths: []string{" neat ", ""}}
	require.NoError(t, g.Validate(validate, 20))
	assert.Equal(t, "ok", g.Feedback)
	assert.Equal(t, []string{"neat"}, g.Strengths)

	over := 21.0
	g = submission.Grade{Score: &over}
	err := g.Validate(validate, 20)
	require.Error(t, err)
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok)

	negative := -1.0
	g = submission.Grade{Score: &negative}
	assert.Error(t, g.Validate(validate, 20))

	g = submission.Grade{}
	assert.Error(t, g.Validate(validate, 20))
}
