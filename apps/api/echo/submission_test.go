package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/submission"
	testutil "github.com/alloqly/alloqly/tests"
)

type submissionFixture struct {
	classFixture
	a assignment.Assignment
}

func newSubmissionFixture(t *testing.T) submissionFixture {
	f := submissionFixture{classFixture: newClassFixture(t)}
	f.a = createAssignment(t, f.cls, "My holidays")
	return f
}

func (f submissionFixture) submit(t *testing.T, content string) submission.Submission {
	rec := httpTest{
		method: http.MethodPost, path: "/api/assignments/" + f.a.ID + "/submissions", token: getToken(t, f.student),
		body: marchallObj(t, submission.NewSubmission{Content: content}), wantCode: http.StatusCreated,
	}.run(t)
	return unmarshal[submission.Submission](t, rec)
}

func Test_submissionApi_submit(t *testing.T) {
	f := newSubmissionFixture(t)
	path := "/api/assignments/" + f.a.ID + "/submissions"

	runTests(t, []httpTest{
		{
			name: "content required", token: getToken(t, f.student), body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"content": "this field is required"}),
		},
		{
			name: "outsiders cannot submit", token: getToken(t, f.outsider), body: []byte(`{"content": "Hi"}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "teachers cannot submit", token: getToken(t, f.teacher), body: []byte(`{"content": "Hi"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "nothing submitted yet", method: http.MethodGet, path: "/api/assignments/" + f.a.ID + "/submission",
			token: getToken(t, f.student), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: submission.ErrNotFound.Error()}),
		},
	}, http.MethodPost, path)

	t.Run("pasted text", func(t *testing.T) {
		sub := f.submit(t, "  I went to Victoria Falls.  ")
		assert.Equal(t, f.student.ID, sub.StudentID)
		assert.Equal(t, "I went to Victoria Falls.", sub.Content)
		assert.Equal(t, submission.StatusSubmitted, sub.Status)
		assert.Nil(t, sub.Score)
		assert.False(t, sub.Late)
	})

	t.Run("uploaded file replaces the text", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, getToken(t, f.student), nil, "holidays.txt", []byte("I went to Lake Kariba.\n"))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		sub := unmarshal[submission.Submission](t, rec)
		assert.Equal(t, "I went to Lake Kariba.", sub.Content)
		assert.Equal(t, "holidays.txt", sub.SourceFilename)

		rec = httpTest{
			method: http.MethodGet, path: "/api/assignments/" + f.a.ID + "/submission", token: getToken(t, f.student), wantCode: http.StatusOK,
		}.run(t)
		assert.Equal(t, sub.ID, unmarshal[submission.Submission](t, rec).ID)
	})
}

func Test_submissionApi_query(t *testing.T) {
	f := newSubmissionFixture(t)
	classmate := testutil.CreateStudent(t, usrRepo, "chipo")
	testutil.Enroll(t, classRepo, f.cls.ID, classmate.ID)

	mine := f.submit(t, "I went to Victoria Falls.")
	rec := httpTest{
		method: http.MethodPost, path: "/api/assignments/" + f.a.ID + "/submissions", token: getToken(t, classmate),
		body: []byte(`{"content": "I stayed home."}`), wantCode: http.StatusCreated,
	}.run(t)
	theirs := unmarshal[submission.Submission](t, rec)

	path := "/api/assignments/" + f.a.ID + "/submissions"
	runTests(t, []httpTest{
		{name: "teacher sees all", token: getToken(t, f.teacher), wantCode: http.StatusOK, wantData: marchallList(t, mine, theirs)},
		{
			name: "teacher filters by student", path: path + "?student_id=" + classmate.ID, token: getToken(t, f.teacher),
			wantCode: http.StatusOK, wantData: marchallList(t, theirs),
		},
		{
			name: "teacher filters by status", path: path + "?status=" + submission.StatusGraded, token: getToken(t, f.teacher),
			wantCode: http.StatusOK, wantData: marchallList(t),
		},
		{name: "student sees their own", token: getToken(t, f.student), wantCode: http.StatusOK, wantData: marchallList(t, mine)},
		{
			name: "student cannot peek", path: path + "?student_id=" + classmate.ID, token: getToken(t, f.student),
			wantCode: http.StatusOK, wantData: marchallList(t, mine),
		},
		{name: "outsider", token: getToken(t, f.outsider), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "own detail", path: "/api/submissions/" + mine.ID, token: getToken(t, f.student), wantCode: http.StatusOK, wantData: marchallObj(t, mine)},
		{name: "teacher detail", path: "/api/submissions/" + mine.ID, token: getToken(t, f.teacher), wantCode: http.StatusOK, wantData: marchallObj(t, mine)},
		{name: "classmate detail", path: "/api/submissions/" + mine.ID, token: getToken(t, classmate), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "unknown detail", path: "/api/submissions/lol", token: getToken(t, f.teacher), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
	}, http.MethodGet, path+"?ordering=submitted_at")
}

func Test_submissionApi_aiGrade(t *testing.T) {
	f := newSubmissionFixture(t)
	sub := f.submit(t, "I went to Victoria Falls.")
	path := "/api/submissions/" + sub.ID + "/ai-grade"

	runTests(t, []httpTest{
		{name: "students cannot grade", token: getToken(t, f.student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "other teachers cannot grade", token: getToken(t, f.other), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "AI service down", token: getToken(t, f.teacher), wantCode: http.StatusBadGateway, wantData: marchallObj(t, errAIUnavailable)},
	}, http.MethodPost, path)

	t.Run("graded", func(t *testing.T) {
		mailSvc.Reset()
		llm.Queue(`{"score": "18/20", "feedback": "Lovely description.", "strengths": ["Vivid"], "improvements": []}`)

		rec := httpTest{method: http.MethodPost, path: path, token: getToken(t, f.teacher), wantCode: http.StatusOK}.run(t)
		graded := unmarshal[submission.Submission](t, rec)
		require.NotNil(t, graded.Score)
		assert.Equal(t, 18.0, *graded.Score)
		assert.Equal(t, submission.StatusGraded, graded.Status)
		assert.Equal(t, submission.GradedByAI, graded.GradedBy)
		assert.Equal(t, "Lovely description.", graded.Feedback)
		assert.Equal(t, []string{"Vivid"}, graded.Strengths)
		assert.NotNil(t, graded.GradedAt)

		sent := mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, f.student.Email, sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "18 / 20")
	})

	t.Run("graded work cannot be resubmitted", func(t *testing.T) {
		httpTest{
			method: http.MethodPost, path: "/api/assignments/" + f.a.ID + "/submissions", token: getToken(t, f.student),
			body:     []byte(`{"content": "A better essay."}`),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: submission.ErrAlreadyGraded.Error()}),
		}.run(t)
	})
}

func Test_submissionApi_grade(t *testing.T) {
	f := newSubmissionFixture(t)
	sub := f.submit(t, "I went to Victoria Falls.")
	path := "/api/submissions/" + sub.ID + "/grade"

	runTests(t, []httpTest{
		{
			name: "students cannot grade", token: getToken(t, f.student), body: []byte(`{"score": 20}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "score required", token: getToken(t, f.teacher), body: []byte(`{"feedback": "Good"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"score": "this field is required"}),
		},
		{
			name: "score over the maximum", token: getToken(t, f.teacher), body: []byte(`{"score": 21}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"score": "score cannot be greater than the maximum score of the assignment"}),
		},
	}, http.MethodPut, path)

	t.Run("graded by the teacher", func(t *testing.T) {
		mailSvc.Reset()
		rec := httpTest{
			method: http.MethodPut, path: path, token: getToken(t, f.teacher), wantCode: http.StatusOK,
			body: []byte(`{"score": 15.5, "feedback": " Good, but short. ", "improvements": ["Add details"]}`),
		}.run(t)
		graded := unmarshal[submission.Submission](t, rec)
		require.NotNil(t, graded.Score)
		assert.Equal(t, 15.5, *graded.Score)
		assert.Equal(t, submission.GradedByTeacher, graded.GradedBy)
		assert.Equal(t, "Good, but short.", graded.Feedback)
		assert.Equal(t, []string{"Add details"}, graded.Improvements)
		assert.Len(t, mailSvc.SentMessages(), 1)

		rec = httpTest{method: http.MethodGet, path: "/api/submissions/" + sub.ID, token: getToken(t, f.student), wantCode: http.StatusOK}.run(t)
		assert.Equal(t, submission.StatusGraded, unmarshal[submission.Submission](t, rec).Status)
	})
}
