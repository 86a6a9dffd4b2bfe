package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/user"
)

const userTable = `"user"`

var userOrdering = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     sql.NullString `db:"username"`
	Email        sql.NullString `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        fromArray(r.Roles),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

func userValues(usr user.User) map[string]interface{} {
	return map[string]interface{}{
		"name":          usr.Name,
		"username":      nullString(usr.Username),
		"email":         nullString(usr.Email),
		"is_active":     usr.IsActive,
		"roles":         stringArray(usr.Roles),
		"password_hash": usr.PasswordHash,
		"created_at":    usr.CreatedAt.UTC(),
		"updated_at":    usr.UpdatedAt.UTC(),
		"last_login":    sql.NullTime{Time: usr.LastLogin.UTC(), Valid: !usr.LastLogin.IsZero()},
	}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{exec: exec}
}

// trapUserErr maps "no rows" and unique violations to user errors
func trapUserErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "user_username_key":
			return user.ErrUsernameExists
		case "user_email_key":
			return user.ErrEmailExists
		default:
			return user.ErrUserExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	match := sq.Or{}
	if username != "" {
		match = append(match, sq.Eq{"username": username})
	}
	if email != "" {
		match = append(match, sq.Eq{"email": email})
	}
	if len(match) == 0 {
		return nil
	}
	qb := psql.Select("username", "email").From(userTable).Where(match)
	if ids := validIDs(excludedIDs); len(ids) > 0 {
		qb = qb.Where(sq.NotEq{"id": ids})
	}

	var taken []struct {
		Username sql.NullString `db:"username"`
		Email    sql.NullString `db:"email"`
	}
	if err := selectAll(ctx, repo.exec, &taken, qb); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, t := range taken {
		if username != "" && t.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	values := userValues(usr)
	values["id"] = uuid.New().String()

	var row userRow
	qb := psql.Insert(userTable).SetMap(values).Suffix("RETURNING *")
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return user.User{}, trapUserErr(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	qb := psql.Select("*").From(userTable)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := ilike(filter.Search)
			qb = qb.Where(sq.Or{
				sq.ILike{"name": val},
				sq.ILike{"username": val},
				sq.ILike{"email": val},
			})
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roles := sq.Or{}
			for _, role := range filter.Roles {
				roles = append(roles, sq.Expr(
					`id IN (SELECT id FROM "user", UNNEST(roles) user_role WHERE user_role ILIKE ?)`, role+"%"))
			}
			qb = qb.Where(roles)
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
		if filter.IDs != nil {
			qb = qb.Where(sq.Eq{"id": validIDs(filter.IDs)})
		}
	}
	qb = qb.OrderBy(orderBy(ordering, userOrdering, "created_at DESC")...)

	var rows []userRow
	if err := selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	qb := psql.Select("*").From(userTable)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		qb = qb.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		qb = qb.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		qb = qb.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := getOne(ctx, repo.exec, &row, qb.Limit(1)); err != nil {
		return user.User{}, trapUserErr(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	values := userValues(usr)
	delete(values, "created_at")

	var row userRow
	qb := psql.Update(userTable).SetMap(values).Where(sq.Eq{"id": usr.ID}).Suffix("RETURNING *")
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return user.User{}, trapUserErr(err, "updating user")
	}
	return row.user(), nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := execAffecting(ctx, repo.exec, psql.Delete(userTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return n, nil
}
