package inmemdb

import (
	"cmp"
	"context"

	"github.com/google/uuid"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/submission"
)

var submissionOrdering = map[string]comparer[submission.Submission]{
	"status":       func(a, b submission.Submission) int { return cmp.Compare(a.Status, b.Status) },
	"submitted_at": func(a, b submission.Submission) int { return compareTimes(a.SubmittedAt, b.SubmittedAt) },
	"graded_at":    func(a, b submission.Submission) int { return compareTimePtrs(a.GradedAt, b.GradedAt) },
	"updated_at":   func(a, b submission.Submission) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
	"score": func(a, b submission.Submission) int {
		switch {
		case a.Score == nil && b.Score == nil:
			return 0
		case a.Score == nil:
			return 1
		case b.Score == nil:
			return -1
		}
		return cmp.Compare(*a.Score, *b.Score)
	},
}

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) submission.Repository {
	return &submissionRepository{db: db}
}

func copySubmission(sub submission.Submission) submission.Submission {
	if sub.Score != nil {
		score := *sub.Score
		sub.Score = &score
	}
	sub.GradedAt = copyTime(sub.GradedAt)
	sub.Strengths = copyStrings(sub.Strengths)
	sub.Improvements = copyStrings(sub.Improvements)
	return sub
}

func (db *DB) findSubmission(assignmentID, studentID string) (submission.Submission, bool) {
	for _, sub := range db.submissions {
		if sub.AssignmentID == assignmentID && sub.StudentID == studentID {
			return sub, true
		}
	}
	return submission.Submission{}, false
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.findSubmission(sub.AssignmentID, sub.StudentID); ok {
		return submission.Submission{}, submission.ErrAlreadySubmitted
	}
	sub = copySubmission(sub)
	sub.ID = uuid.New().String()
	repo.db.submissions[sub.ID] = sub
	return copySubmission(sub), nil
}

func (repo *submissionRepository) QuerySubmissions(
	_ context.Context, filter submission.QueryFilter, ordering []core.DBOrdering,
) ([]submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := make([]submission.Submission, 0)
	for _, sub := range repo.db.submissions {
		if filter.AssignmentID != "" && sub.AssignmentID != filter.AssignmentID {
			continue
		}
		if filter.StudentID != "" && sub.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		subs = append(subs, copySubmission(sub))
	}
	sortBy(subs, ordering, submissionOrdering, core.DBOrdering{Field: "submitted_at", Ascending: true})
	return subs, nil
}

func (repo *submissionRepository) GetSubmission(_ context.Context, filter submission.GetFilter) (submission.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if sub, ok := repo.db.submissions[filter.ID]; ok {
			return copySubmission(sub), nil
		}
	case filter.AssignmentID != "" && filter.StudentID != "":
		if sub, ok := repo.db.findSubmission(filter.AssignmentID, filter.StudentID); ok {
			return copySubmission(sub), nil
		}
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *submissionRepository) UpdateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.submissions[sub.ID]
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	sub = copySubmission(sub)
	sub.AssignmentID = orig.AssignmentID
	sub.StudentID = orig.StudentID
	repo.db.submissions[sub.ID] = sub
	return copySubmission(sub), nil
}
