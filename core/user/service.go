package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrUserExists     = errors.New("a user with this username or email already exists")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrInvalidToken   = errors.New("invalid or expired password reset link")
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists, ErrEmailExists or ErrUserExists when the username or email
		// is already taken by a user other than excludedIDs.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, user User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		// QueryFilter.Roles matches users having any role starting with any of the provided roles.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, user User) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string) (int, error)
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen *tokenGenerator
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		mailSvc:  mailSvc,
		tokenGen: newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

// CheckUniqueness returns a core.ValidationError if the username or email is taken by a user other than excludedIDs.
func (svc *Service) CheckUniqueness(uname, email string, excludedIDs ...string) error {
	err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, excludedIDs...)
	if err == nil {
		return nil
	}
	switch errors.Cause(err) {
	case ErrUsernameExists:
		return core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
	case ErrEmailExists:
		return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
	case ErrUserExists:
		return core.NewValidationError(err)
	default:
		return err
	}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Email: email})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: uname})
}

// Update applies uu (already validated against usr) to usr.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.Roles = uu.Roles
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}

// RequestPasswordReset emails a password reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *Service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: struct {
			Name, UID, Token string
		}{
			Name:  usr.Name,
			UID:   EncodeUID(usr),
			Token: svc.tokenGen.makeToken(usr),
		},
	})
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) (User, error) {
	id, err := decodeUID(data.UID)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidToken
		}
		return User{}, err
	}
	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return User{}, ErrInvalidToken
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// MakePasswordResetToken returns the uid and token of a password reset link for usr.
func (svc *Service) MakePasswordResetToken(usr User) (uid, token string) {
	return EncodeUID(usr), svc.tokenGen.makeToken(usr)
}
