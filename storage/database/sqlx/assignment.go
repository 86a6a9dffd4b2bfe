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
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/persona"
)

var assignmentOrdering = map[string]string{
	"title":      "title",
	"due_at":     "due_at",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type assignmentRow struct {
	ID             string       `db:"id"`
	ClassID        string       `db:"class_id"`
	TeacherID      string       `db:"teacher_id"`
	Title          string       `db:"title"`
	Instructions   string       `db:"instructions"`
	Content        string       `db:"content"`
	SourceFilename string       `db:"source_filename"`
	SourceFormat   string       `db:"source_format"`
	DueAt          sql.NullTime `db:"due_at"`
	MaxScore       int          `db:"max_score"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

func (r assignmentRow) assignment() assignment.Assignment {
	a := assignment.Assignment{
		ID:             r.ID,
		ClassID:        r.ClassID,
		TeacherID:      r.TeacherID,
		Title:          r.Title,
		Instructions:   r.Instructions,
		Content:        r.Content,
		SourceFilename: r.SourceFilename,
		SourceFormat:   r.SourceFormat,
		MaxScore:       r.MaxScore,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.DueAt.Valid {
		t := r.DueAt.Time.UTC()
		a.DueAt = &t
	}
	return a
}

func assignmentValues(a assignment.Assignment) map[string]interface{} {
	return map[string]interface{}{
		"class_id":        a.ClassID,
		"teacher_id":      a.TeacherID,
		"title":           a.Title,
		"instructions":    a.Instructions,
		"content":         a.Content,
		"source_filename": a.SourceFilename,
		"source_format":   a.SourceFormat,
		"due_at":          nullTimePtr(a.DueAt),
		"max_score":       a.MaxScore,
		"created_at":      a.CreatedAt.UTC(),
		"updated_at":      a.UpdatedAt.UTC(),
	}
}

type variantRow struct {
	ID             string         `db:"id"`
	AssignmentID   string         `db:"assignment_id"`
	Persona        string         `db:"persona"`
	Title          string         `db:"title"`
	Content        string         `db:"content"`
	Accommodations pq.StringArray `db:"accommodations"`
	TeacherNotes   string         `db:"teacher_notes"`
	Model          string         `db:"model"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r variantRow) variant() assignment.Variant {
	return assignment.Variant{
		ID:             r.ID,
		AssignmentID:   r.AssignmentID,
		Persona:        persona.Persona(r.Persona),
		Title:          r.Title,
		Content:        r.Content,
		Accommodations: fromArray(r.Accommodations),
		TeacherNotes:   r.TeacherNotes,
		Model:          r.Model,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type assignmentRepository struct {
	exec core.DBExecutor
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(exec core.DBExecutor) assignment.Repository {
	return &assignmentRepository{exec: exec}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	values := assignmentValues(a)
	values["id"] = uuid.New().String()

	var row assignmentRow
	if err := getOne(ctx, repo.exec, &row, psql.Insert("assignment").SetMap(values).Suffix("RETURNING *")); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return row.assignment(), nil
}

func (repo *assignmentRepository) QueryAssignments(
	ctx context.Context, filter assignment.QueryFilter, ordering []core.DBOrdering,
) ([]assignment.Assignment, error) {
	qb := psql.Select("*").From("assignment")
	if filter.ClassID != "" {
		qb = qb.Where(sq.Eq{"class_id": validIDs([]string{filter.ClassID})})
	}
	if filter.ClassIDs != nil {
		qb = qb.Where(sq.Eq{"class_id": validIDs(filter.ClassIDs)})
	}
	if filter.TeacherID != "" {
		qb = qb.Where(sq.Eq{"teacher_id": validIDs([]string{filter.TeacherID})})
	}
	if filter.Search != "" {
		val := ilike(filter.Search)
		qb = qb.Where(sq.Or{sq.ILike{"title": val}, sq.ILike{"instructions": val}})
	}
	qb = qb.OrderBy(orderBy(ordering, assignmentOrdering, "created_at DESC")...)

	var rows []assignmentRow
	if err := selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]assignment.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.assignment())
	}
	return assignments, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	if !validID(id) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var row assignmentRow
	err := getOne(ctx, repo.exec, &row, psql.Select("*").From("assignment").Where(sq.Eq{"id": id}))
	if err == sql.ErrNoRows {
		return assignment.Assignment{}, assignment.ErrNotFound
	} else if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return row.assignment(), nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	if !validID(a.ID) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	values := assignmentValues(a)
	delete(values, "class_id")
	delete(values, "teacher_id")
	delete(values, "created_at")

	var row assignmentRow
	qb := psql.Update("assignment").SetMap(values).Where(sq.Eq{"id": a.ID}).Suffix("RETURNING *")
	err := getOne(ctx, repo.exec, &row, qb)
	if err == sql.ErrNoRows {
		return assignment.Assignment{}, assignment.ErrNotFound
	} else if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	return row.assignment(), nil
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	if !validID(id) {
		return assignment.ErrNotFound
	}
	n, err := execAffecting(ctx, repo.exec, psql.Delete("assignment").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n == 0 {
		return assignment.ErrNotFound
	}
	return nil
}

func (repo *assignmentRepository) UpsertVariant(ctx context.Context, v assignment.Variant) (assignment.Variant, error) {
	if !validID(v.AssignmentID) {
		return assignment.Variant{}, assignment.ErrNotFound
	}
	qb := psql.Insert("assignment_variant").
		SetMap(map[string]interface{}{
			"id":             uuid.New().String(),
			"assignment_id":  v.AssignmentID,
			"persona":        string(v.Persona),
			"title":          v.Title,
			"content":        v.Content,
			"accommodations": stringArray(v.Accommodations),
			"teacher_notes":  v.TeacherNotes,
			"model":          v.Model,
			"created_at":     v.CreatedAt.UTC(),
			"updated_at":     v.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (assignment_id, persona) DO UPDATE SET
			title = EXCLUDED.title, content = EXCLUDED.content, accommodations = EXCLUDED.accommodations,
			teacher_notes = EXCLUDED.teacher_notes, model = EXCLUDED.model, updated_at = EXCLUDED.updated_at
			RETURNING *`)

	var row variantRow
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return assignment.Variant{}, errors.Wrap(err, "upserting variant")
	}
	return row.variant(), nil
}

func (repo *assignmentRepository) QueryVariants(ctx context.Context, assignmentID string) ([]assignment.Variant, error) {
	if !validID(assignmentID) {
		return []assignment.Variant{}, nil
	}
	var rows []variantRow
	qb := psql.Select("*").From("assignment_variant").Where(sq.Eq{"assignment_id": assignmentID}).OrderBy("persona ASC")
	if err := selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying variants")
	}
	variants := make([]assignment.Variant, 0, len(rows))
	for _, r := range rows {
		variants = append(variants, r.variant())
	}
	return variants, nil
}

func (repo *assignmentRepository) GetVariant(ctx context.Context, assignmentID string, p persona.Persona) (assignment.Variant, error) {
	if !validID(assignmentID) {
		return assignment.Variant{}, assignment.ErrVariantNotFound
	}
	var row variantRow
	qb := psql.Select("*").From("assignment_variant").Where(sq.Eq{"assignment_id": assignmentID, "persona": string(p)})
	err := getOne(ctx, repo.exec, &row, qb)
	if err == sql.ErrNoRows {
		return assignment.Variant{}, assignment.ErrVariantNotFound
	} else if err != nil {
		return assignment.Variant{}, errors.Wrap(err, "getting variant")
	}
	return row.variant(), nil
}

func (repo *assignmentRepository) UpdateVariant(ctx context.Context, v assignment.Variant) (assignment.Variant, error) {
	if !validID(v.ID) {
		return assignment.Variant{}, assignment.ErrVariantNotFound
	}
	qb := psql.Update("assignment_variant").
		SetMap(map[string]interface{}{
			"title":          v.Title,
			"content":        v.Content,
			"accommodations": stringArray(v.Accommodations),
			"teacher_notes":  v.TeacherNotes,
			"updated_at":     v.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": v.ID}).
		Suffix("RETURNING *")

	var row variantRow
	err := getOne(ctx, repo.exec, &row, qb)
	if err == sql.ErrNoRows {
		return assignment.Variant{}, assignment.ErrVariantNotFound
	} else if err != nil {
		return assignment.Variant{}, errors.Wrap(err, "updating variant")
	}
	return row.variant(), nil
}

func (repo *assignmentRepository) DeleteVariant(ctx context.Context, assignmentID string, p persona.Persona) error {
	if !validID(assignmentID) {
		return assignment.ErrVariantNotFound
	}
	qb := psql.Delete("assignment_variant").Where(sq.Eq{"assignment_id": assignmentID, "persona": string(p)})
	n, err := execAffecting(ctx, repo.exec, qb)
	if err != nil {
		return errors.Wrap(err, "deleting variant")
	}
	if n == 0 {
		return assignment.ErrVariantNotFound
	}
	return nil
}
