package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/user"
	testutil "github.com/alloqly/alloqly/tests"
)

func Test_classApi_create(t *testing.T) {
	resetDB()
	teacher := testutil.CreateTeacher(t, usrRepo, "kamara")
	student := testutil.CreateStudent(t, usrRepo, "amina")

	runTests(t, []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students cannot create classes", token: getToken(t, student), body: []byte(`{"name": "Math"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "name required", token: getToken(t, teacher), body: []byte(`{"name": "   "}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
	}, http.MethodPost, "/api/classes")

	t.Run("created with a join code", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodPost, path: "/api/classes", token: getToken(t, teacher), wantCode: http.StatusCreated,
			body: marchallObj(t, class.NewClass{Name: " Math 6B ", Subject: "Math", GradeLevel: "6"}),
		}.run(t)
		cls := unmarshal[class.Class](t, rec)
		assert.NotEmpty(t, cls.ID)
		assert.Equal(t, "Math 6B", cls.Name)
		assert.Equal(t, teacher.ID, cls.TeacherID)
		assert.Len(t, cls.JoinCode, class.JoinCodeLength)
		assert.NotNil(t, cls.JoinCodeExpiresAt)
		assert.Zero(t, cls.StudentCount)
	})
}

func Test_classApi_query(t *testing.T) {
	resetDB()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@alloqly.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateTeacher(t, usrRepo, "kamara")
	other := testutil.CreateTeacher(t, usrRepo, "banda")
	student := testutil.CreateStudent(t, usrRepo, "amina")

	math := testutil.CreateClass(t, classRepo, teacher.ID, "Math")
	english := testutil.CreateClass(t, classRepo, teacher.ID, "English")
	art := testutil.CreateClass(t, classRepo, other.ID, "Art")
	testutil.Enroll(t, classRepo, math.ID, student.ID)
	testutil.Enroll(t, classRepo, art.ID, student.ID)
	math.StudentCount, art.StudentCount = 1, 1

	runTests(t, []httpTest{
		{name: "teacher sees their classes", token: getToken(t, teacher), wantCode: http.StatusOK, wantData: marchallList(t, english, math)},
		{name: "student sees joined classes", token: getToken(t, student), wantCode: http.StatusOK, wantData: marchallList(t, art, math)},
		{name: "admin sees all classes", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallList(t, art, english, math)},
		{
			name: "admin filters by teacher", path: "/api/classes?teacher_id=" + other.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, art),
		},
		{
			name: "ordering", path: "/api/classes?ordering=-name", token: getToken(t, teacher),
			wantCode: http.StatusOK, wantData: marchallList(t, math, english),
		},
	}, http.MethodGet, "/api/classes")
}

func Test_classApi_access(t *testing.T) {
	resetDB()
	teacher := testutil.CreateTeacher(t, usrRepo, "kamara")
	other := testutil.CreateTeacher(t, usrRepo, "banda")
	member := testutil.CreateStudent(t, usrRepo, "amina")
	outsider := testutil.CreateStudent(t, usrRepo, "tendai")

	cls := testutil.CreateClass(t, classRepo, teacher.ID, "Math")
	testutil.Enroll(t, classRepo, cls.ID, member.ID)
	cls.StudentCount = 1
	path := "/api/classes/" + cls.ID

	runTests(t, []httpTest{
		{name: "owner", token: getToken(t, teacher), wantCode: http.StatusOK, wantData: marchallObj(t, cls)},
		{name: "member", token: getToken(t, member), wantCode: http.StatusOK, wantData: marchallObj(t, cls.Public())},
		{name: "outsider", token: getToken(t, outsider), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "another teacher", token: getToken(t, other), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "unknown class", path: "/api/classes/lol", token: getToken(t, teacher), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "members cannot edit", method: http.MethodPut, token: getToken(t, member), body: []byte(`{"name": "Maths"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "members cannot see the roster", path: path + "/students", token: getToken(t, member), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
	}, http.MethodGet, path)

	t.Run("owner edits", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodPut, path: path, token: getToken(t, teacher), wantCode: http.StatusOK,
			body: []byte(`{"name": "Maths", "description": "Year 6"}`),
		}.run(t)
		updated := unmarshal[class.Class](t, rec)
		assert.Equal(t, "Maths", updated.Name)
		assert.Equal(t, "Year 6", updated.Description)
	})

	t.Run("owner removes a student", func(t *testing.T) {
		httpTest{method: http.MethodDelete, path: path + "/students/" + member.ID, token: getToken(t, teacher), wantCode: http.StatusNoContent}.run(t)
		httpTest{method: http.MethodGet, path: path, token: getToken(t, member), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}.run(t)
		httpTest{
			method: http.MethodDelete, path: path + "/students/" + member.ID, token: getToken(t, teacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: class.ErrNotEnrolled.Error()}),
		}.run(t)
	})

	t.Run("owner deletes", func(t *testing.T) {
		httpTest{method: http.MethodDelete, path: path, token: getToken(t, teacher), wantCode: http.StatusNoContent}.run(t)
		httpTest{method: http.MethodGet, path: path, token: getToken(t, teacher), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}.run(t)
	})
}

func Test_classApi_joinCode(t *testing.T) {
	resetDB()
	teacher := testutil.CreateTeacher(t, usrRepo, "kamara")
	student := testutil.CreateStudent(t, usrRepo, "amina")
	cls := testutil.CreateClass(t, classRepo, teacher.ID, "Math")
	path := "/api/classes/" + cls.ID

	rec := httpTest{method: http.MethodPost, path: path + "/join-code", token: getToken(t, teacher), wantCode: http.StatusOK}.run(t)
	code := unmarshal[class.Class](t, rec).JoinCode
	require.Len(t, code, class.JoinCodeLength)

	join := func(code string) []byte { return marchallObj(t, class.JoinRequest{Code: code}) }
	runTests(t, []httpTest{
		{name: "teachers cannot join", token: getToken(t, teacher), body: join(code), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "code required", token: getToken(t, student), body: join(" "), wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"code": "this field is required"})},
		{name: "unknown code", token: getToken(t, student), body: join("ZZZZZZZZ"), wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: class.ErrJoinCodeNotFound.Error()})},
	}, http.MethodPost, "/api/classes/join")

	t.Run("joined", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodPost, path: "/api/classes/join", token: getToken(t, student), wantCode: http.StatusOK,
			body: join(" " + strings.ToLower(code) + " "),
		}.run(t)
		joined := unmarshal[class.Class](t, rec)
		assert.Equal(t, cls.ID, joined.ID)
		assert.Empty(t, joined.JoinCode, "students do not see the join code")
		assert.Equal(t, 1, joined.StudentCount)

		httpTest{method: http.MethodGet, path: path, token: getToken(t, student), wantCode: http.StatusOK}.run(t)
	})

	t.Run("joined twice", func(t *testing.T) {
		httpTest{
			method: http.MethodPost, path: "/api/classes/join", token: getToken(t, student), body: join(code),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: class.ErrAlreadyEnrolled.Error()}),
		}.run(t)
	})

	t.Run("revoked code", func(t *testing.T) {
		rec := httpTest{method: http.MethodDelete, path: path + "/join-code", token: getToken(t, teacher), wantCode: http.StatusOK}.run(t)
		assert.Empty(t, unmarshal[class.Class](t, rec).JoinCode)

		newcomer := testutil.CreateStudent(t, usrRepo, "tendai")
		httpTest{
			method: http.MethodPost, path: "/api/classes/join", token: getToken(t, newcomer), body: join(code),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: class.ErrJoinCodeNotFound.Error()}),
		}.run(t)
	})
}

func Test_classApi_invitations(t *testing.T) {
	resetDB()
	teacher := testutil.CreateTeacher(t, usrRepo, "kamara")
	amina := testutil.CreateStudent(t, usrRepo, "amina")
	tendai := testutil.CreateStudent(t, usrRepo, "tendai")
	cls := testutil.CreateClass(t, classRepo, teacher.ID, "Math")
	path := "/api/classes/" + cls.ID + "/invitations"

	t.Run("invalid emails", func(t *testing.T) {
		httpTest{
			method: http.MethodPost, path: path, token: getToken(t, teacher), body: []byte(`{"emails": []}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"emails": "emails must contain at least 1 item"}),
		}.run(t)
	})

	rec := httpTest{
		method: http.MethodPost, path: path, token: getToken(t, teacher), wantCode: http.StatusCreated,
		body: marchallObj(t, class.Invite{Emails: []string{" Amina@Alloqly.test", tendai.Email}}),
	}.run(t)
	invitations := unmarshal[[]class.Invitation](t, rec)
	require.Len(t, invitations, 2)
	assert.Equal(t, amina.Email, invitations[0].Email)
	assert.Equal(t, class.InvitationPending, invitations[0].Status)
	assert.Empty(t, invitations[0].Token, "tokens are never exposed")

	sent := mailSvc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, amina.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Math")

	rec = httpTest{method: http.MethodGet, path: "/api/invitations", token: getToken(t, amina), wantCode: http.StatusOK}.run(t)
	mine := unmarshal[[]class.Invitation](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, invitations[0].ID, mine[0].ID)

	aminaPath := "/api/invitations/" + invitations[0].ID
	runTests(t, []httpTest{
		{
			name: "teachers cannot answer", path: aminaPath + "/accept", token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "sent to someone else", path: aminaPath + "/accept", token: getToken(t, tendai),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: class.ErrInvitationWrongEmail.Error()}),
		},
		{
			name: "unknown invitation", path: "/api/invitations/lol/accept", token: getToken(t, amina),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: class.ErrInvitationNotFound.Error()}),
		},
		{
			name: "token required", path: "/api/invitations/accept", token: getToken(t, amina), body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"token": "this field is required"}),
		},
	}, http.MethodPost, "")

	t.Run("accepted by token", func(t *testing.T) {
		inv, err := classRepo.GetInvitation(context.Background(), invitations[0].ID, "")
		require.NoError(t, err)

		rec := httpTest{
			method: http.MethodPost, path: "/api/invitations/accept", token: getToken(t, amina), wantCode: http.StatusOK,
			body: marchallObj(t, map[string]string{"token": inv.Token}),
		}.run(t)
		accepted := unmarshal[class.Invitation](t, rec)
		assert.Equal(t, class.InvitationAccepted, accepted.Status)
		assert.NotNil(t, accepted.RespondedAt)

		httpTest{method: http.MethodGet, path: "/api/classes/" + cls.ID, token: getToken(t, amina), wantCode: http.StatusOK}.run(t)
		httpTest{
			method: http.MethodPost, path: aminaPath + "/decline", token: getToken(t, amina),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: class.ErrInvitationAnswered.Error()}),
		}.run(t)
	})

	t.Run("revoked", func(t *testing.T) {
		rec := httpTest{
			method: http.MethodDelete, path: path + "/" + invitations[1].ID, token: getToken(t, teacher), wantCode: http.StatusOK,
		}.run(t)
		assert.Equal(t, class.InvitationRevoked, unmarshal[class.Invitation](t, rec).Status)

		httpTest{
			method: http.MethodPost, path: "/api/invitations/" + invitations[1].ID + "/decline", token: getToken(t, tendai),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: class.ErrInvitationAnswered.Error()}),
		}.run(t)
		httpTest{method: http.MethodGet, path: "/api/invitations", token: getToken(t, tendai), wantCode: http.StatusOK, wantData: []byte(`[]`)}.run(t)
	})

	t.Run("class invitations", func(t *testing.T) {
		rec := httpTest{method: http.MethodGet, path: path, token: getToken(t, teacher), wantCode: http.StatusOK}.run(t)
		all := unmarshal[[]class.Invitation](t, rec)
		require.Len(t, all, 2)
		statuses := []string{all[0].Status, all[1].Status}
		assert.ElementsMatch(t, []string{class.InvitationAccepted, class.InvitationRevoked}, statuses)
	})
}
