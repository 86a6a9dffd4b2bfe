package submission

import (
	"context"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/extract"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/prompt"
	"github.com/alloqly/alloqly/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("submission not found")
	ErrAlreadySubmitted = errors.New("this assignment was already submitted")
	ErrAlreadyGraded    = errors.New("this submission has already been graded")
)

type (
	Repository interface {
		// CreateSubmission returns ErrAlreadySubmitted when the student already has a submission for the assignment.
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		QuerySubmissions(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Submission, error)
		GetSubmission(ctx context.Context, filter GetFilter) (Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)
	}

	// Profiles reads learner profiles.
	Profiles interface {
		Get(ctx context.Context, userID string) (profile.Profile, error)
	}

	// Users reads user accounts.
	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo      Repository
		llm       core.LLMService
		profiles  Profiles
		users     Users
		mailSvc   core.EmailService
		extractor *extract.Extractor
		now       func() time.Time
	}
)

func NewService(
	repo Repository, llm core.LLMService, profiles Profiles, users Users, mailSvc core.EmailService, extractor *extract.Extractor,
) *Service {
	return &Service{
		repo:      repo,
		llm:       llm,
		profiles:  profiles,
		users:     users,
		mailSvc:   mailSvc,
		extractor: extractor,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores the work of studentID for a. Submitting again before grading replaces the content.
func (svc *Service) Submit(ctx context.Context, a assignment.Assignment, studentID string, ns NewSubmission) (Submission, error) {
	res, err := svc.extractor.FromText(ns.Content)
	if err != nil {
		return Submission{}, err
	}
	now := svc.now()

	sub, err := svc.repo.GetSubmission(ctx, GetFilter{AssignmentID: a.ID, StudentID: studentID})
	switch {
	case err == nil:
		if sub.IsGraded() {
			return Submission{}, ErrAlreadyGraded
		}
		sub.Content = res.Text
		sub.SourceFilename = ns.SourceFilename
		sub.Late = a.IsLate(now)
		sub.SubmittedAt = now
		sub.UpdatedAt = now
		return svc.repo.UpdateSubmission(ctx, sub)
	case errors.Cause(err) != ErrNotFound:
		return Submission{}, err
	}

	return svc.repo.CreateSubmission(ctx, Submission{
		AssignmentID:   a.ID,
		StudentID:      studentID,
		Content:        res.Text,
		SourceFilename: ns.SourceFilename,
		Status:         StatusSubmitted,
		Late:           a.IsLate(now),
		Strengths:      []string{},
		Improvements:   []string{},
		SubmittedAt:    now,
		UpdatedAt:      now,
	})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Submission, error) {
	if id == "" {
		return Submission{}, ErrNotFound
	}
	return svc.repo.GetSubmission(ctx, GetFilter{ID: id})
}

// Get returns the submission of studentID for assignmentID.
func (svc *Service) Get(ctx context.Context, assignmentID, studentID string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, GetFilter{AssignmentID: assignmentID, StudentID: studentID})
}

// AIGrade asks the model to grade sub against a, stores the result and emails the student.
func (svc *Service) AIGrade(ctx context.Context, a assignment.Assignment, sub Submission) (Submission, error) {
	prof, err := svc.profiles.Get(ctx, sub.StudentID)
	if err != nil {
		return Submission{}, err
	}
	req, err := prompt.BuildGrade(prompt.GradeInput{
		Title:          a.Title,
		Instructions:   a.Instructions,
		Content:        a.Content,
		Submission:     sub.Content,
		MaxScore:       float64(a.MaxScore),
		Persona:        prof.Persona,
		Accommodations: prof.Accommodations,
	})
	if err != nil {
		return Submission{}, errors.Wrap(err, "building prompt")
	}
	raw, err := svc.llm.Complete(ctx, req)
	if err != nil {
		return Submission{}, err
	}
	res, err := prompt.ParseGrade(raw, float64(a.MaxScore))
	if err != nil {
		return Submission{}, err
	}

	return svc.grade(ctx, a, sub, GradedByAI, res)
}

// Grade stores a teacher's grade (already validated) on sub and emails the student.
func (svc *Service) Grade(ctx context.Context, a assignment.Assignment, sub Submission, g Grade) (Submission, error) {
	res := prompt.GradeResult{
		Score:        prompt.ClampScore(*g.Score, float64(a.MaxScore)),
		Feedback:     g.Feedback,
		Strengths:    g.Strengths,
		Improvements: g.Improvements,
	}
	if res.Strengths == nil {
		res.Strengths = []string{}
	}
	if res.Improvements == nil {
		res.Improvements = []string{}
	}
	return svc.grade(ctx, a, sub, GradedByTeacher, res)
}

func (svc *Service) grade(ctx context.Context, a assignment.Assignment, sub Submission, by string, res prompt.GradeResult) (Submission, error) {
	now := svc.now()
	score := res.Score
	sub.Score = &score
	sub.Feedback = res.Feedback
	sub.Strengths = res.Strengths
	sub.Improvements = res.Improvements
	sub.Status = StatusGraded
	sub.GradedBy = by
	sub.GradedAt = &now
	sub.UpdatedAt = now

	sub, err := svc.repo.UpdateSubmission(ctx, sub)
	if err != nil {
		return Submission{}, err
	}
	svc.sendGradedMail(ctx, a, sub)
	return sub, nil
}

func (svc *Service) sendGradedMail(ctx context.Context, a assignment.Assignment, sub Submission) {
	student, err := svc.users.GetByID(ctx, sub.StudentID)
	if err != nil || student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Your work on " + a.Title + " has been graded",
		TemplateName: "submission_graded",
		TemplateData: struct {
			Name, AssignmentID, AssignmentTitle, Score, Feedback string
			MaxScore                                             int
		}{
			Name:            student.Name,
			AssignmentID:    a.ID,
			AssignmentTitle: a.Title,
			Score:           strconv.FormatFloat(*sub.Score, 'f', -1, 64),
			Feedback:        sub.Feedback,
			MaxScore:        a.MaxScore,
		},
	})
}
