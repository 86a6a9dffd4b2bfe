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
	"github.com/alloqly/alloqly/core/submission"
)

var submissionOrdering = map[string]string{
	"status":       "status",
	"score":        "score",
	"submitted_at": "submitted_at",
	"graded_at":    "graded_at",
	"updated_at":   "updated_at",
}

type submissionRow struct {
	ID             string          `db:"id"`
	AssignmentID   string          `db:"assignment_id"`
	StudentID      string          `db:"student_id"`
	Content        string          `db:"content"`
	SourceFilename string          `db:"source_filename"`
	Status         string          `db:"status"`
	Late           bool            `db:"late"`
	Score          sql.NullFloat64 `db:"score"`
	Feedback       string          `db:"feedback"`
	Strengths      pq.StringArray  `db:"strengths"`
	Improvements   pq.StringArray  `db:"improvements"`
	GradedBy       string          `db:"graded_by"`
	GradedAt       sql.NullTime    `db:"graded_at"`
	SubmittedAt    time.Time       `db:"submitted_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r submissionRow) submission() submission.Submission {
	sub := submission.Submission{
		ID:             r.ID,
		AssignmentID:   r.AssignmentID,
		StudentID:      r.StudentID,
		Content:        r.Content,
		SourceFilename: r.SourceFilename,
		Status:         r.Status,
		Late:           r.Late,
		Feedback:       r.Feedback,
		Strengths:      fromArray(r.Strengths),
		Improvements:   fromArray(r.Improvements),
		GradedBy:       r.GradedBy,
		SubmittedAt:    r.SubmittedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.Score.Valid {
		score := r.Score.Float64
		sub.Score = &score
	}
	if r.GradedAt.Valid {
		t := r.GradedAt.Time.UTC()
		sub.GradedAt = &t
	}
	return sub
}

func submissionValues(sub submission.Submission) map[string]interface{} {
	score := sql.NullFloat64{}
	if sub.Score != nil {
		score = sql.NullFloat64{Float64: *sub.Score, Valid: true}
	}
	return map[string]interface{}{
		"assignment_id":   sub.AssignmentID,
		"student_id":      sub.StudentID,
		"content":         sub.Content,
		"source_filename": sub.SourceFilename,
		"status":          sub.Status,
		"late":            sub.Late,
		"score":           score,
		"feedback":        sub.Feedback,
		"strengths":       stringArray(sub.Strengths),
		"improvements":    stringArray(sub.Improvements),
		"graded_by":       sub.GradedBy,
		"graded_at":       nullTimePtr(sub.GradedAt),
		"submitted_at":    sub.SubmittedAt.UTC(),
		"updated_at":      sub.UpdatedAt.UTC(),
	}
}

type submissionRepository struct {
	exec core.DBExecutor
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(exec core.DBExecutor) submission.Repository {
	return &submissionRepository{exec: exec}
}

func (repo *submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	values := submissionValues(sub)
	values["id"] = uuid.New().String()

	var row submissionRow
	if err := getOne(ctx, repo.exec, &row, psql.Insert("submission").SetMap(values).Suffix("RETURNING *")); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return submission.Submission{}, submission.ErrAlreadySubmitted
		}
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return row.submission(), nil
}

func (repo *submissionRepository) QuerySubmissions(
	ctx context.Context, filter submission.QueryFilter, ordering []core.DBOrdering,
) ([]submission.Submission, error) {
	qb := psql.Select("*").From("submission")
	if filter.AssignmentID != "" {
		qb = qb.Where(sq.Eq{"assignment_id": validIDs([]string{filter.AssignmentID})})
	}
	if filter.StudentID != "" {
		qb = qb.Where(sq.Eq{"student_id": validIDs([]string{filter.StudentID})})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": filter.Status})
	}
	qb = qb.OrderBy(orderBy(ordering, submissionOrdering, "submitted_at ASC")...)

	var rows []submissionRow
	if err := selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.submission())
	}
	return subs, nil
}

func (repo *submissionRepository) GetSubmission(ctx context.Context, filter submission.GetFilter) (submission.Submission, error) {
	qb := psql.Select("*").From("submission")
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return submission.Submission{}, submission.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.AssignmentID != "" && filter.StudentID != "":
		if !validID(filter.AssignmentID) || !validID(filter.StudentID) {
			return submission.Submission{}, submission.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"assignment_id": filter.AssignmentID, "student_id": filter.StudentID})
	default:
		return submission.Submission{}, submission.ErrNotFound
	}

	var row submissionRow
	err := getOne(ctx, repo.exec, &row, qb)
	if err == sql.ErrNoRows {
		return submission.Submission{}, submission.ErrNotFound
	} else if err != nil {
		return submission.Submission{}, errors.Wrap(err, "getting submission")
	}
	return row.submission(), nil
}

func (repo *submissionRepository) UpdateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	if !validID(sub.ID) {
		return submission.Submission{}, submission.ErrNotFound
	}
	values := submissionValues(sub)
	delete(values, "assignment_id")
	delete(values, "student_id")

	var row submissionRow
	qb := psql.Update("submission").SetMap(values).Where(sq.Eq{"id": sub.ID}).Suffix("RETURNING *")
	err := getOne(ctx, repo.exec, &row, qb)
	if err == sql.ErrNoRows {
		return submission.Submission{}, submission.ErrNotFound
	} else if err != nil {
		return submission.Submission{}, errors.Wrap(err, "updating submission")
	}
	return row.submission(), nil
}
