package inmemdb

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/persona"
)

var assignmentOrdering = map[string]comparer[assignment.Assignment]{
	"title":      func(a, b assignment.Assignment) int { return compareStrings(a.Title, b.Title) },
	"due_at":     func(a, b assignment.Assignment) int { return compareTimePtrs(a.DueAt, b.DueAt) },
	"created_at": func(a, b assignment.Assignment) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b assignment.Assignment) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
}

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func copyAssignment(a assignment.Assignment) assignment.Assignment {
	a.DueAt = copyTime(a.DueAt)
	return a
}

func copyVariant(v assignment.Variant) assignment.Variant {
	v.Accommodations = copyStrings(v.Accommodations)
	return v
}

func (repo *assignmentRepository) CreateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[a.ClassID]; !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	a = copyAssignment(a)
	a.ID = uuid.New().String()
	repo.db.assignments[a.ID] = a
	return copyAssignment(a), nil
}

func (repo *assignmentRepository) QueryAssignments(
	_ context.Context, filter assignment.QueryFilter, ordering []core.DBOrdering,
) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	assignments := make([]assignment.Assignment, 0)
	for _, a := range repo.db.assignments {
		if filter.ClassID != "" && a.ClassID != filter.ClassID {
			continue
		}
		if filter.ClassIDs != nil && !slices.Contains(filter.ClassIDs, a.ClassID) {
			continue
		}
		if filter.TeacherID != "" && a.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Search != "" && !containsFold(a.Title, filter.Search) && !containsFold(a.Instructions, filter.Search) {
			continue
		}
		assignments = append(assignments, copyAssignment(a))
	}
	sortBy(assignments, ordering, assignmentOrdering, core.DBOrdering{Field: "created_at"})
	return assignments, nil
}

func (repo *assignmentRepository) GetAssignment(_ context.Context, id string) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return copyAssignment(a), nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) UpdateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.assignments[a.ID]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	a = copyAssignment(a)
	a.ClassID = orig.ClassID
	a.TeacherID = orig.TeacherID
	a.CreatedAt = orig.CreatedAt
	repo.db.assignments[a.ID] = a
	return copyAssignment(a), nil
}

func (repo *assignmentRepository) DeleteAssignment(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return assignment.ErrNotFound
	}
	repo.db.deleteAssignment(id)
	return nil
}

// deleteAssignment removes the assignment with its variants and submissions. Callers hold the lock.
func (db *DB) deleteAssignment(id string) {
	delete(db.assignments, id)
	for vid, v := range db.variants {
		if v.AssignmentID == id {
			delete(db.variants, vid)
		}
	}
	for sid, sub := range db.submissions {
		if sub.AssignmentID == id {
			delete(db.submissions, sid)
		}
	}
}

func (db *DB) findVariant(assignmentID string, p persona.Persona) (assignment.Variant, bool) {
	for _, v := range db.variants {
		if v.AssignmentID == assignmentID && v.Persona == p {
			return v, true
		}
	}
	return assignment.Variant{}, false
}

func (repo *assignmentRepository) UpsertVariant(_ context.Context, v assignment.Variant) (assignment.Variant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[v.AssignmentID]; !ok {
		return assignment.Variant{}, assignment.ErrNotFound
	}
	v = copyVariant(v)
	if existing, ok := repo.db.findVariant(v.AssignmentID, v.Persona); ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	} else {
		v.ID = uuid.New().String()
	}
	repo.db.variants[v.ID] = v
	return copyVariant(v), nil
}

func (repo *assignmentRepository) QueryVariants(_ context.Context, assignmentID string) ([]assignment.Variant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	variants := make([]assignment.Variant, 0)
	for _, v := range repo.db.variants {
		if v.AssignmentID == assignmentID {
			variants = append(variants, copyVariant(v))
		}
	}
	slices.SortFunc(variants, func(a, b assignment.Variant) int { return compareStrings(string(a.Persona), string(b.Persona)) })
	return variants, nil
}

func (repo *assignmentRepository) GetVariant(_ context.Context, assignmentID string, p persona.Persona) (assignment.Variant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if v, ok := repo.db.findVariant(assignmentID, p); ok {
		return copyVariant(v), nil
	}
	return assignment.Variant{}, assignment.ErrVariantNotFound
}

func (repo *assignmentRepository) UpdateVariant(_ context.Context, v assignment.Variant) (assignment.Variant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.variants[v.ID]
	if !ok {
		return assignment.Variant{}, assignment.ErrVariantNotFound
	}
	orig.Title = v.Title
	orig.Content = v.Content
	orig.Accommodations = copyStrings(v.Accommodations)
	orig.TeacherNotes = v.TeacherNotes
	orig.UpdatedAt = v.UpdatedAt
	repo.db.variants[orig.ID] = orig
	return copyVariant(orig), nil
}

func (repo *assignmentRepository) DeleteVariant(_ context.Context, assignmentID string, p persona.Persona) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	v, ok := repo.db.findVariant(assignmentID, p)
	if !ok {
		return assignment.ErrVariantNotFound
	}
	delete(repo.db.variants, v.ID)
	return nil
}
