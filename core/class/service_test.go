package class_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/assets"
	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/user"
	emailsvc "github.com/alloqly/alloqly/services/email"
	inmemdb "github.com/alloqly/alloqly/storage/database/inmem"
	testutil "github.com/alloqly/alloqly/tests"
)

type fixture struct {
	ctx     context.Context
	classes class.Repository
	users   user.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	svc     *class.Service
	teacher user.User
	student user.User
	conf    *core.Config
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	require.NoError(t, core.ParseEmailTemplates(assets.FS, conf))

	db := inmemdb.Open()
	f := fixture{
		ctx:     context.Background(),
		classes: inmemdb.NewClassRepository(db),
		users:   inmemdb.NewUserRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf),
		conf:    conf,
	}
	f.svc = class.NewService(f.classes, f.mailSvc, conf)
	f.teacher = testutil.CreateTeacher(t, f.users, "kamara")
	f.student = testutil.CreateStudent(t, f.users, "amina")
	return f
}

func TestService_Create(t *testing.T) {
	f := setup(t)

	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Math 6B", Subject: "Math"})
	require.NoError(t, err)

	assert.NotEmpty(t, cls.ID)
	assert.Equal(t, f.teacher.ID, cls.TeacherID)
	assert.Len(t, cls.JoinCode, class.JoinCodeLength)
	for _, r := range cls.JoinCode {
		assert.True(t, strings.ContainsRune(class.JoinCodeAlphabet, r), "unexpected rune %q", r)
	}
	require.NotNil(t, cls.JoinCodeExpiresAt)
	assert.WithinDuration(t, time.Now().Add(f.conf.Classes.JoinCodeTTL), *cls.JoinCodeExpiresAt, time.Minute)
	assert.True(t, cls.JoinCodeActive(time.Now()))
}

func TestService_JoinByCode(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Science"})
	require.NoError(t, err)

	// codes are matched regardless of case, spaces and dashes
	code := strings.ToLower(cls.JoinCode[:3]) + "-" + cls.JoinCode[3:]
	joined, err := f.svc.JoinByCode(f.ctx, code, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, cls.ID, joined.ID)
	assert.Equal(t, 1, joined.StudentCount)

	enrolled, err := f.svc.IsEnrolled(f.ctx, cls.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	ok, err := f.svc.TeacherHasStudent(f.ctx, f.teacher.ID, f.student.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.JoinByCode(f.ctx, cls.JoinCode, f.student.ID)
	assert.Equal(t, class.ErrAlreadyEnrolled, errors.Cause(err))

	_, err = f.svc.JoinByCode(f.ctx, "ZZZZZZ", f.student.ID)
	assert.Equal(t, class.ErrJoinCodeNotFound, errors.Cause(err))

	_, err = f.svc.JoinByCode(f.ctx, "  ", f.student.ID)
	assert.Equal(t, class.ErrJoinCodeNotFound, errors.Cause(err))
}

func TestService_JoinByCode_Expired(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "History"})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	cls.JoinCodeExpiresAt = &past
	_, err = f.classes.UpdateClass(f.ctx, cls)
	require.NoError(t, err)

	_, err = f.svc.JoinByCode(f.ctx, cls.JoinCode, f.student.ID)
	assert.Equal(t, class.ErrJoinCodeExpired, errors.Cause(err))

	// a regenerated code works again and the old one is gone
	regenerated, err := f.svc.GenerateJoinCode(f.ctx, cls)
	require.NoError(t, err)
	_, err = f.svc.JoinByCode(f.ctx, regenerated.JoinCode, f.student.ID)
	assert.NoError(t, err)
}

func TestService_RevokeJoinCode(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Art"})
	require.NoError(t, err)
	code := cls.JoinCode

	cls, err = f.svc.RevokeJoinCode(f.ctx, cls)
	require.NoError(t, err)
	assert.Empty(t, cls.JoinCode)
	assert.Nil(t, cls.JoinCodeExpiresAt)

	_, err = f.svc.JoinByCode(f.ctx, code, f.student.ID)
	assert.Equal(t, class.ErrJoinCodeNotFound, errors.Cause(err))
}

func TestService_RosterAndRemoveStudent(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Biology"})
	require.NoError(t, err)
	other := testutil.CreateStudent(t, f.users, "tendai")
	testutil.Enroll(t, f.classes, cls.ID, f.student.ID)
	testutil.Enroll(t, f.classes, cls.ID, other.ID)

	ids, err := f.svc.StudentIDs(f.ctx, cls.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.student.ID, other.ID}, ids)

	require.NoError(t, f.svc.RemoveStudent(f.ctx, cls.ID, other.ID))
	roster, err := f.svc.Roster(f.ctx, cls.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, f.student.ID, roster[0].StudentID)

	err = f.svc.RemoveStudent(f.ctx, cls.ID, other.ID)
	assert.Equal(t, class.ErrNotEnrolled, errors.Cause(err))

	classes, err := f.svc.Query(f.ctx, class.QueryFilter{StudentID: f.student.ID}, nil)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, 1, classes[0].StudentCount)
}

func TestService_Update(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Geo"})
	require.NoError(t, err)

	name, subject := "Geography", "Social studies"
	cls, err = f.svc.Update(f.ctx, cls, class.UpdateClass{Name: &name, Subject: &subject})
	require.NoError(t, err)
	assert.Equal(t, "Geography", cls.Name)
	assert.Equal(t, "Social studies", cls.Subject)
	assert.NotEmpty(t, cls.JoinCode)

	require.NoError(t, f.svc.Delete(f.ctx, cls.ID))
	_, err = f.svc.GetByID(f.ctx, cls.ID)
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))
}

func TestService_Invite(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Chemistry"})
	require.NoError(t, err)

	invs, err := f.svc.Invite(f.ctx, cls, f.teacher.Name, class.Invite{Emails: []string{f.student.Email, "new@alloqly.test"}})
	require.NoError(t, err)
	require.Len(t, invs, 2)
	for _, inv := range invs {
		assert.Equal(t, class.InvitationPending, inv.Status)
		assert.Equal(t, cls.ID, inv.ClassID)
		assert.Equal(t, f.teacher.ID, inv.InvitedBy)
		assert.NotEmpty(t, inv.Token)
	}

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, f.student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Chemistry")
	assert.Contains(t, sent[0].TextContent, "/invitations/"+invs[0].Token)
	assert.Contains(t, sent[0].TextContent, f.teacher.Name)

	// inviting again refreshes the pending invitation instead of duplicating it
	again, err := f.svc.Invite(f.ctx, cls, f.teacher.Name, class.Invite{Emails: []string{f.student.Email}})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, invs[0].ID, again[0].ID)
	assert.NotEqual(t, invs[0].Token, again[0].Token)

	all, err := f.svc.Invitations(f.ctx, cls.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.svc.PendingInvitations(f.ctx, strings.ToUpper(f.student.Email))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, invs[0].ID, pending[0].ID)
}

func TestService_Respond(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Physics"})
	require.NoError(t, err)
	invs, err := f.svc.Invite(f.ctx, cls, f.teacher.Name, class.Invite{Emails: []string{f.student.Email}})
	require.NoError(t, err)
	inv := invs[0]

	t.Run("wrong email", func(t *testing.T) {
		_, err := f.svc.Respond(f.ctx, inv.ID, "", f.student.ID, "someone@else.test", true)
		assert.Equal(t, class.ErrInvitationWrongEmail, errors.Cause(err))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := f.svc.Respond(f.ctx, "", "nope", f.student.ID, f.student.Email, true)
		assert.Equal(t, class.ErrInvitationNotFound, errors.Cause(err))
		_, err = f.svc.Respond(f.ctx, "", "", f.student.ID, f.student.Email, true)
		assert.Equal(t, class.ErrInvitationNotFound, errors.Cause(err))
	})

	t.Run("accept by token", func(t *testing.T) {
		accepted, err := f.svc.Respond(f.ctx, "", inv.Token, f.student.ID, f.student.Email, true)
		require.NoError(t, err)
		assert.Equal(t, class.InvitationAccepted, accepted.Status)
		assert.NotNil(t, accepted.RespondedAt)

		enrolled, err := f.svc.IsEnrolled(f.ctx, cls.ID, f.student.ID)
		require.NoError(t, err)
		assert.True(t, enrolled)
	})

	t.Run("already answered", func(t *testing.T) {
		_, err := f.svc.Respond(f.ctx, inv.ID, "", f.student.ID, f.student.Email, false)
		assert.Equal(t, class.ErrInvitationAnswered, errors.Cause(err))
	})
}

func TestService_Respond_DeclineAndExpired(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Music"})
	require.NoError(t, err)
	other := testutil.CreateStudent(t, f.users, "chipo")
	invs, err := f.svc.Invite(f.ctx, cls, f.teacher.Name, class.Invite{Emails: []string{f.student.Email, other.Email}})
	require.NoError(t, err)

	declined, err := f.svc.Respond(f.ctx, invs[0].ID, "", f.student.ID, f.student.Email, false)
	require.NoError(t, err)
	assert.Equal(t, class.InvitationDeclined, declined.Status)
	enrolled, err := f.svc.IsEnrolled(f.ctx, cls.ID, f.student.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)

	expired := invs[1]
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	_, err = f.classes.UpdateInvitation(f.ctx, expired)
	require.NoError(t, err)

	_, err = f.svc.Respond(f.ctx, expired.ID, "", other.ID, other.Email, true)
	assert.Equal(t, class.ErrInvitationExpired, errors.Cause(err))

	pending, err := f.svc.PendingInvitations(f.ctx, other.Email)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_RevokeInvitation(t *testing.T) {
	f := setup(t)
	cls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "French"})
	require.NoError(t, err)
	otherCls, err := f.svc.Create(f.ctx, f.teacher.ID, class.NewClass{Name: "Spanish"})
	require.NoError(t, err)
	invs, err := f.svc.Invite(f.ctx, cls, f.teacher.Name, class.Invite{Emails: []string{f.student.Email}})
	require.NoError(t, err)

	_, err = f.svc.RevokeInvitation(f.ctx, otherCls.ID, invs[0].ID)
	assert.Equal(t, class.ErrInvitationNotFound, errors.Cause(err))

	revoked, err := f.svc.RevokeInvitation(f.ctx, cls.ID, invs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, class.InvitationRevoked, revoked.Status)

	_, err = f.svc.RevokeInvitation(f.ctx, cls.ID, invs[0].ID)
	assert.Equal(t, class.ErrInvitationAnswered, errors.Cause(err))

	_, err = f.svc.Respond(f.ctx, invs[0].ID, "", f.student.ID, f.student.Email, true)
	assert.Equal(t, class.ErrInvitationAnswered, errors.Cause(err))
}

func TestInvite_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	inv := class.Invite{Emails: []string{" A@Example.com ", "a@example.com", ""}}
	require.NoError(t, inv.Validate(validate))
	assert.Equal(t, []string{"a@example.com"}, inv.Emails)

	inv = class.Invite{Emails: []string{"not-an-email"}}
	assert.Error(t, inv.Validate(validate))

	inv = class.Invite{}
	assert.Error(t, inv.Validate(validate))
}

func TestNormalizeJoinCode(t *testing.T) {
	assert.Equal(t, "ABC234", class.NormalizeJoinCode(" abc-234 "))
	assert.Equal(t, "ABC234", class.NormalizeJoinCode("ABC 234"))
	assert.Equal(t, "", class.NormalizeJoinCode(" - "))
}
