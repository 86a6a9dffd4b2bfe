package inmemdb

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/class"
)

var classOrdering = map[string]comparer[class.Class]{
	"name":       func(a, b class.Class) int { return compareStrings(a.Name, b.Name) },
	"subject":    func(a, b class.Class) int { return compareStrings(a.Subject, b.Subject) },
	"created_at": func(a, b class.Class) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b class.Class) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
}

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db}
}

// withCount returns a copy of cls with its student count. Callers hold the lock.
func (db *DB) withCount(cls class.Class) class.Class {
	cls.JoinCodeExpiresAt = copyTime(cls.JoinCodeExpiresAt)
	cls.StudentCount = 0
	for key := range db.enrollments {
		if key.classID == cls.ID {
			cls.StudentCount++
		}
	}
	return cls
}

func (db *DB) joinCodeTaken(code, excludedID string) bool {
	if code == "" {
		return false
	}
	for _, cls := range db.classes {
		if cls.ID != excludedID && cls.JoinCode == code {
			return true
		}
	}
	return false
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.db.joinCodeTaken(cls.JoinCode, "") {
		return class.Class{}, class.ErrJoinCodeExists
	}
	cls.ID = uuid.New().String()
	cls.JoinCodeExpiresAt = copyTime(cls.JoinCodeExpiresAt)
	repo.db.classes[cls.ID] = cls
	return repo.db.withCount(cls), nil
}

func (repo *classRepository) QueryClasses(_ context.Context, filter class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]class.Class, 0)
	for _, cls := range repo.db.classes {
		if filter.TeacherID != "" && cls.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" {
			if _, ok := repo.db.enrollments[enrollmentKey{cls.ID, filter.StudentID}]; !ok {
				continue
			}
		}
		if filter.Search != "" && !containsFold(cls.Name, filter.Search) && !containsFold(cls.Subject, filter.Search) {
			continue
		}
		classes = append(classes, repo.db.withCount(cls))
	}
	sortBy(classes, ordering, classOrdering, core.DBOrdering{Field: "name", Ascending: true})
	return classes, nil
}

func (repo *classRepository) GetClass(_ context.Context, filter class.GetFilter) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if cls, ok := repo.db.classes[filter.ID]; ok {
			return repo.db.withCount(cls), nil
		}
	case filter.JoinCode != "":
		for _, cls := range repo.db.classes {
			if cls.JoinCode == filter.JoinCode {
				return repo.db.withCount(cls), nil
			}
		}
		return class.Class{}, class.ErrJoinCodeNotFound
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.classes[cls.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	if repo.db.joinCodeTaken(cls.JoinCode, cls.ID) {
		return class.Class{}, class.ErrJoinCodeExists
	}
	cls.TeacherID = orig.TeacherID
	cls.CreatedAt = orig.CreatedAt
	cls.JoinCodeExpiresAt = copyTime(cls.JoinCodeExpiresAt)
	repo.db.classes[cls.ID] = cls
	return repo.db.withCount(cls), nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return class.ErrNotFound
	}
	repo.db.deleteClass(id)
	return nil
}

// deleteClass removes the class and cascades to its enrollments, invitations and assignments. Callers hold the lock.
func (db *DB) deleteClass(id string) {
	delete(db.classes, id)
	for key := range db.enrollments {
		if key.classID == id {
			delete(db.enrollments, key)
		}
	}
	for iid, inv := range db.invitations {
		if inv.ClassID == id {
			delete(db.invitations, iid)
		}
	}
	for aid, a := range db.assignments {
		if a.ClassID == id {
			db.deleteAssignment(aid)
		}
	}
}

func (repo *classRepository) CreateEnrollment(_ context.Context, enr class.Enrollment) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[enr.ClassID]; !ok {
		return class.ErrNotFound
	}
	key := enrollmentKey{enr.ClassID, enr.StudentID}
	if _, ok := repo.db.enrollments[key]; ok {
		return class.ErrAlreadyEnrolled
	}
	repo.db.enrollments[key] = enr
	return nil
}

func (repo *classRepository) DeleteEnrollment(_ context.Context, classID, studentID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := enrollmentKey{classID, studentID}
	if _, ok := repo.db.enrollments[key]; !ok {
		return class.ErrNotEnrolled
	}
	delete(repo.db.enrollments, key)
	return nil
}

func (repo *classRepository) QueryEnrollments(_ context.Context, classID string) ([]class.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrollments := make([]class.Enrollment, 0)
	for key, enr := range repo.db.enrollments {
		if key.classID == classID {
			enrollments = append(enrollments, enr)
		}
	}
	slices.SortStableFunc(enrollments, func(a, b class.Enrollment) int { return compareTimes(a.JoinedAt, b.JoinedAt) })
	return enrollments, nil
}

func (repo *classRepository) IsEnrolled(_ context.Context, classID, studentID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.enrollments[enrollmentKey{classID, studentID}]
	return ok, nil
}

func (repo *classRepository) HasStudent(_ context.Context, teacherID, studentID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for key := range repo.db.enrollments {
		if key.studentID == studentID && repo.db.classes[key.classID].TeacherID == teacherID {
			return true, nil
		}
	}
	return false, nil
}

func copyInvitation(inv class.Invitation) class.Invitation {
	inv.RespondedAt = copyTime(inv.RespondedAt)
	return inv
}

func (repo *classRepository) CreateInvitation(_ context.Context, inv class.Invitation) (class.Invitation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[inv.ClassID]; !ok {
		return class.Invitation{}, class.ErrNotFound
	}
	inv = copyInvitation(inv)
	inv.ID = uuid.New().String()
	repo.db.invitations[inv.ID] = inv
	return copyInvitation(inv), nil
}

func (repo *classRepository) QueryInvitations(_ context.Context, filter class.InvitationFilter) ([]class.Invitation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	invitations := make([]class.Invitation, 0)
	for _, inv := range repo.db.invitations {
		if filter.ClassID != "" && inv.ClassID != filter.ClassID {
			continue
		}
		if filter.Email != "" && inv.Email != filter.Email {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		invitations = append(invitations, copyInvitation(inv))
	}
	slices.SortStableFunc(invitations, func(a, b class.Invitation) int { return compareTimes(b.CreatedAt, a.CreatedAt) })
	return invitations, nil
}

func (repo *classRepository) GetInvitation(_ context.Context, id, token string) (class.Invitation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case id != "":
		if inv, ok := repo.db.invitations[id]; ok {
			return copyInvitation(inv), nil
		}
	case token != "":
		for _, inv := range repo.db.invitations {
			if inv.Token == token {
				return copyInvitation(inv), nil
			}
		}
	}
	return class.Invitation{}, class.ErrInvitationNotFound
}

func (repo *classRepository) UpdateInvitation(_ context.Context, inv class.Invitation) (class.Invitation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.invitations[inv.ID]
	if !ok {
		return class.Invitation{}, class.ErrInvitationNotFound
	}
	inv = copyInvitation(inv)
	inv.ClassID = orig.ClassID
	inv.Email = orig.Email
	inv.CreatedAt = orig.CreatedAt
	repo.db.invitations[inv.ID] = inv
	return copyInvitation(inv), nil
}
