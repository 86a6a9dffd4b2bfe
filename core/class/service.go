package class

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
)

const (
	JoinCodeLength   = 6
	JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O, 1/I

	invitationTokenLength   = 32
	invitationTokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxJoinCodeAttempts = 5
)

var (
	// errors
	ErrNotFound             = errors.New("class not found")
	ErrJoinCodeNotFound     = errors.New("invalid join code")
	ErrJoinCodeExpired      = errors.New("this join code has expired")
	ErrJoinCodeExists       = errors.New("join code already in use")
	ErrAlreadyEnrolled      = errors.New("student is already enrolled in this class")
	ErrNotEnrolled          = errors.New("student is not enrolled in this class")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrInvitationExpired    = errors.New("this invitation has expired")
	ErrInvitationAnswered   = errors.New("this invitation has already been answered")
	ErrInvitationWrongEmail = errors.New("this invitation was sent to a different email address")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class) (Class, error)
		// QueryClasses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Class.Name or Class.Subject.
		QueryClasses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		GetClass(ctx context.Context, filter GetFilter) (Class, error)
		// UpdateClass returns ErrJoinCodeExists when cls.JoinCode is taken by another class.
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		DeleteClass(ctx context.Context, id string) error

		// CreateEnrollment returns ErrAlreadyEnrolled when the student is already in the class.
		CreateEnrollment(ctx context.Context, enr Enrollment) error
		// DeleteEnrollment returns ErrNotEnrolled when there is nothing to delete.
		DeleteEnrollment(ctx context.Context, classID, studentID string) error
		QueryEnrollments(ctx context.Context, classID string) ([]Enrollment, error)
		IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
		// HasStudent reports whether studentID is enrolled in any class taught by teacherID.
		HasStudent(ctx context.Context, teacherID, studentID string) (bool, error)

		CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		QueryInvitations(ctx context.Context, filter InvitationFilter) ([]Invitation, error)
		// GetInvitation looks an invitation up by id or, when id is empty, by token.
		GetInvitation(ctx context.Context, id, token string) (Invitation, error)
		UpdateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		now     func() time.Time
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (svc *Service) Create(ctx context.Context, teacherID string, nc NewClass) (Class, error) {
	now := svc.now()
	cls := Class{
		Name:        nc.Name,
		Subject:     nc.Subject,
		Description: nc.Description,
		GradeLevel:  nc.GradeLevel,
		TeacherID:   teacherID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	cls, err := svc.repo.CreateClass(ctx, cls)
	if err != nil {
		return Class{}, errors.Wrap(err, "creating class")
	}
	return svc.GenerateJoinCode(ctx, cls)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Class, error) {
	if id == "" {
		return Class{}, ErrNotFound
	}
	return svc.repo.GetClass(ctx, GetFilter{ID: id})
}

// Update applies uc (already validated) to cls.
func (svc *Service) Update(ctx context.Context, cls Class, uc UpdateClass) (Class, error) {
	cls = uc.apply(cls)
	cls.UpdatedAt = svc.now()
	return svc.repo.UpdateClass(ctx, cls)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteClass(ctx, id)
}

// GenerateJoinCode sets a fresh join code on cls, valid for Classes.JoinCodeTTL.
func (svc *Service) GenerateJoinCode(ctx context.Context, cls Class) (Class, error) {
	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		code, err := core.RandomString(JoinCodeLength, JoinCodeAlphabet)
		if err != nil {
			return Class{}, errors.Wrap(err, "generating join code")
		}
		expiresAt := svc.now().Add(svc.conf.Classes.JoinCodeTTL)
		cls.JoinCode = code
		cls.JoinCodeExpiresAt = &expiresAt
		cls.UpdatedAt = svc.now()

		updated, err := svc.repo.UpdateClass(ctx, cls)
		if errors.Cause(err) == ErrJoinCodeExists {
			continue
		}
		return updated, err
	}
	return Class{}, errors.Errorf("no free join code after %d attempts", maxJoinCodeAttempts)
}

// RevokeJoinCode clears the join code of cls.
func (svc *Service) RevokeJoinCode(ctx context.Context, cls Class) (Class, error) {
	cls.JoinCode = ""
	cls.JoinCodeExpiresAt = nil
	cls.UpdatedAt = svc.now()
	return svc.repo.UpdateClass(ctx, cls)
}

// JoinByCode enrolls studentID in the class whose join code is code.
func (svc *Service) JoinByCode(ctx context.Context, code, studentID string) (Class, error) {
	code = NormalizeJoinCode(code)
	if code == "" {
		return Class{}, ErrJoinCodeNotFound
	}
	cls, err := svc.repo.GetClass(ctx, GetFilter{JoinCode: code})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Class{}, ErrJoinCodeNotFound
		}
		return Class{}, err
	}
	if !cls.JoinCodeActive(svc.now()) {
		return Class{}, ErrJoinCodeExpired
	}
	if err = svc.enroll(ctx, cls.ID, studentID); err != nil {
		return Class{}, err
	}
	return svc.GetByID(ctx, cls.ID)
}

func (svc *Service) enroll(ctx context.Context, classID, studentID string) error {
	return svc.repo.CreateEnrollment(ctx, Enrollment{
		ClassID:   classID,
		StudentID: studentID,
		JoinedAt:  svc.now(),
	})
}

// Roster returns the enrollments of classID, oldest first.
func (svc *Service) Roster(ctx context.Context, classID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, classID)
}

// StudentIDs returns the IDs of the students enrolled in classID.
func (svc *Service) StudentIDs(ctx context.Context, classID string) ([]string, error) {
	enrs, err := svc.repo.QueryEnrollments(ctx, classID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(enrs))
	for _, enr := range enrs {
		ids = append(ids, enr.StudentID)
	}
	return ids, nil
}

func (svc *Service) RemoveStudent(ctx context.Context, classID, studentID string) error {
	return svc.repo.DeleteEnrollment(ctx, classID, studentID)
}

func (svc *Service) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	return svc.repo.IsEnrolled(ctx, classID, studentID)
}

// TeacherHasStudent reports whether studentID is enrolled in one of teacherID's classes.
func (svc *Service) TeacherHasStudent(ctx context.Context, teacherID, studentID string) (bool, error) {
	return svc.repo.HasStudent(ctx, teacherID, studentID)
}

// Invite creates (or refreshes) a pending invitation to cls for every email and mails it.
func (svc *Service) Invite(ctx context.Context, cls Class, teacherName string, inv Invite) ([]Invitation, error) {
	pending, err := svc.repo.QueryInvitations(ctx, InvitationFilter{ClassID: cls.ID, Status: InvitationPending})
	if err != nil {
		return nil, errors.Wrap(err, "querying invitations")
	}
	byEmail := make(map[string]Invitation, len(pending))
	for _, p := range pending {
		byEmail[p.Email] = p
	}

	now := svc.now()
	invitations := make([]Invitation, 0, len(inv.Emails))
	messages := make([]*core.EmailMessage, 0, len(inv.Emails))
	for _, email := range inv.Emails {
		token, err := core.RandomString(invitationTokenLength, invitationTokenAlphabet)
		if err != nil {
			return nil, errors.Wrap(err, "generating invitation token")
		}

		invitation, ok := byEmail[email]
		invitation.Token = token
		invitation.ExpiresAt = now.Add(svc.conf.Classes.InvitationTTL)
		invitation.InvitedBy = cls.TeacherID
		if ok {
			invitation, err = svc.repo.UpdateInvitation(ctx, invitation)
		} else {
			invitation.ClassID = cls.ID
			invitation.Email = email
			invitation.Status = InvitationPending
			invitation.CreatedAt = now
			invitation, err = svc.repo.CreateInvitation(ctx, invitation)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "inviting %s", email)
		}
		invitations = append(invitations, invitation)
		messages = append(messages, svc.invitationMail(cls, teacherName, invitation))
	}
	svc.mailSvc.SendMessages(messages...)
	return invitations, nil
}

func (svc *Service) invitationMail(cls Class, teacherName string, inv Invitation) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Address: inv.Email}},
		Subject:      "You are invited to join " + cls.Name,
		TemplateName: "class_invitation",
		TemplateData: struct {
			Name, TeacherName, ClassName, Token string
			ExpiresAt                           time.Time
		}{
			Name:        inv.Email,
			TeacherName: teacherName,
			ClassName:   cls.Name,
			Token:       inv.Token,
			ExpiresAt:   inv.ExpiresAt,
		},
	}
}

// Invitations returns the invitations of classID, all statuses.
func (svc *Service) Invitations(ctx context.Context, classID string) ([]Invitation, error) {
	return svc.repo.QueryInvitations(ctx, InvitationFilter{ClassID: classID})
}

// PendingInvitations returns the unexpired pending invitations sent to email.
func (svc *Service) PendingInvitations(ctx context.Context, email string) ([]Invitation, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return []Invitation{}, nil
	}
	invs, err := svc.repo.QueryInvitations(ctx, InvitationFilter{Email: email, Status: InvitationPending})
	if err != nil {
		return nil, err
	}
	now := svc.now()
	active := make([]Invitation, 0, len(invs))
	for _, inv := range invs {
		if !inv.Expired(now) {
			active = append(active, inv)
		}
	}
	return active, nil
}

// RevokeInvitation cancels the pending invitation id of classID.
func (svc *Service) RevokeInvitation(ctx context.Context, classID, id string) (Invitation, error) {
	inv, err := svc.repo.GetInvitation(ctx, id, "")
	if err != nil {
		return Invitation{}, err
	}
	if inv.ClassID != classID {
		return Invitation{}, ErrInvitationNotFound
	}
	if inv.Status != InvitationPending {
		return Invitation{}, ErrInvitationAnswered
	}
	now := svc.now()
	inv.Status = InvitationRevoked
	inv.RespondedAt = &now
	return svc.repo.UpdateInvitation(ctx, inv)
}

// Respond accepts or declines the invitation identified by id (or token when id is empty) on behalf
// of the student owning email. Accepting enrolls the student.
func (svc *Service) Respond(ctx context.Context, id, token, studentID, email string, accept bool) (Invitation, error) {
	if id == "" && token == "" {
		return Invitation{}, ErrInvitationNotFound
	}
	inv, err := svc.repo.GetInvitation(ctx, id, token)
	if err != nil {
		return Invitation{}, err
	}
	if inv.Email != core.CleanString(email, true /* lower */) {
		return Invitation{}, ErrInvitationWrongEmail
	}
	if inv.Status != InvitationPending {
		return Invitation{}, ErrInvitationAnswered
	}
	now := svc.now()
	if inv.Expired(now) {
		return Invitation{}, ErrInvitationExpired
	}

	if accept {
		if err = svc.enroll(ctx, inv.ClassID, studentID); err != nil && errors.Cause(err) != ErrAlreadyEnrolled {
			return Invitation{}, err
		}
		inv.Status = InvitationAccepted
	} else {
		inv.Status = InvitationDeclined
	}
	inv.RespondedAt = &now
	return svc.repo.UpdateInvitation(ctx, inv)
}
