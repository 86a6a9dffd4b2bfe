package inmemdb

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/user"
)

var userOrdering = map[string]comparer[user.User]{
	"name":       func(a, b user.User) int { return compareStrings(a.Name, b.Name) },
	"username":   func(a, b user.User) int { return compareStrings(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return compareStrings(a.Email, b.Email) },
	"created_at": func(a, b user.User) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b user.User) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
	"last_login": func(a, b user.User) int { return compareTimes(a.LastLogin, b.LastLogin) },
	"is_active": func(a, b user.User) int {
		switch {
		case a.IsActive == b.IsActive:
			return 0
		case a.IsActive:
			return 1
		}
		return -1
	},
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	usr.Roles = copyStrings(usr.Roles)
	if usr.PasswordHash != nil {
		usr.PasswordHash = append([]byte{}, usr.PasswordHash...)
	}
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.checkUniqueness(username, email, excludedIDs...)
}

func (repo *userRepository) checkUniqueness(username, email string, excludedIDs ...string) error {
	var emailTaken bool
	for _, usr := range repo.db.users {
		if slices.Contains(excludedIDs, usr.ID) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			emailTaken = true
		}
	}
	if emailTaken {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.checkUniqueness(usr.Username, usr.Email); err != nil {
		return user.User{}, err
	}
	usr = copyUser(usr)
	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = usr
	return copyUser(usr), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter != nil && !matchUser(usr, filter) {
			continue
		}
		users = append(users, copyUser(usr))
	}
	sortBy(users, ordering, userOrdering, core.DBOrdering{Field: "created_at"})
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" &&
		!containsFold(usr.Name, filter.Search) &&
		!containsFold(usr.Username, filter.Search) &&
		!containsFold(usr.Email, filter.Search) {
		return false
	}
	if len(filter.Roles) > 0 && !hasRolePrefix(usr.Roles, filter.Roles) {
		return false
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	if filter.IDs != nil && !slices.Contains(filter.IDs, usr.ID) {
		return false
	}
	return true
}

// hasRolePrefix reports whether any of roles starts with any of prefixes (case-insensitive).
func hasRolePrefix(roles, prefixes []string) bool {
	for _, role := range roles {
		for _, prefix := range prefixes {
			if strings.HasPrefix(strings.ToLower(role), strings.ToLower(prefix)) {
				return true
			}
		}
	}
	return false
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return copyUser(usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return copyUser(usr), nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return copyUser(usr), nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return copyUser(usr), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUniqueness(usr.Username, usr.Email, usr.ID); err != nil {
		return user.User{}, err
	}
	usr = copyUser(usr)
	usr.CreatedAt = orig.CreatedAt
	repo.db.users[usr.ID] = usr
	return copyUser(usr), nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var deleted int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		repo.db.deleteUser(id)
		deleted++
	}
	return deleted, nil
}

// deleteUser removes the user and cascades to the rows referencing them. Callers hold the lock.
func (db *DB) deleteUser(id string) {
	delete(db.users, id)
	delete(db.profiles, id)
	for cid, cls := range db.classes {
		if cls.TeacherID == id {
			db.deleteClass(cid)
		}
	}
	for key := range db.enrollments {
		if key.studentID == id {
			delete(db.enrollments, key)
		}
	}
	for iid, inv := range db.invitations {
		if inv.InvitedBy == id {
			delete(db.invitations, iid)
		}
	}
	for sid, sub := range db.submissions {
		if sub.StudentID == id {
			delete(db.submissions, sid)
		}
	}
}
