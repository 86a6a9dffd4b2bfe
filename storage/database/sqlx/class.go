package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/class"
)

var classOrdering = map[string]string{
	"name":       "name",
	"subject":    "subject",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type classRow struct {
	ID                string         `db:"id"`
	Name              string         `db:"name"`
	Subject           string         `db:"subject"`
	Description       string         `db:"description"`
	GradeLevel        string         `db:"grade_level"`
	TeacherID         string         `db:"teacher_id"`
	JoinCode          sql.NullString `db:"join_code"`
	JoinCodeExpiresAt sql.NullTime   `db:"join_code_expires_at"`
	StudentCount      int            `db:"student_count"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r classRow) class() class.Class {
	cls := class.Class{
		ID:           r.ID,
		Name:         r.Name,
		Subject:      r.Subject,
		Description:  r.Description,
		GradeLevel:   r.GradeLevel,
		TeacherID:    r.TeacherID,
		JoinCode:     r.JoinCode.String,
		StudentCount: r.StudentCount,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.JoinCodeExpiresAt.Valid {
		t := r.JoinCodeExpiresAt.Time.UTC()
		cls.JoinCodeExpiresAt = &t
	}
	return cls
}

func classValues(cls class.Class) map[string]interface{} {
	return map[string]interface{}{
		"name":                 cls.Name,
		"subject":              cls.Subject,
		"description":          cls.Description,
		"grade_level":          cls.GradeLevel,
		"teacher_id":           cls.TeacherID,
		"join_code":            nullString(cls.JoinCode),
		"join_code_expires_at": nullTimePtr(cls.JoinCodeExpiresAt),
		"created_at":           cls.CreatedAt.UTC(),
		"updated_at":           cls.UpdatedAt.UTC(),
	}
}

func selectClasses() sq.SelectBuilder {
	return psql.Select(
		"class.*",
		"(SELECT COUNT(*) FROM enrollment WHERE enrollment.class_id = class.id) AS student_count",
	).From("class")
}

type classRepository struct {
	exec core.DBExecutor
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(exec core.DBExecutor) class.Repository {
	return &classRepository{exec: exec}
}

func trapClassErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "class_join_code_key":
			return class.ErrJoinCodeExists
		case "enrollment_pkey":
			return class.ErrAlreadyEnrolled
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	values := classValues(cls)
	values["id"] = uuid.New().String()

	var id string
	qb := psql.Insert("class").SetMap(values).Suffix("RETURNING id")
	if err := getOne(ctx, repo.exec, &id, qb); err != nil {
		return class.Class{}, trapClassErr(err, class.ErrNotFound, "inserting class")
	}
	return repo.GetClass(ctx, class.GetFilter{ID: id})
}

func (repo *classRepository) QueryClasses(ctx context.Context, filter class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	qb := selectClasses()
	if filter.TeacherID != "" {
		if !validID(filter.TeacherID) {
			return []class.Class{}, nil
		}
		qb = qb.Where(sq.Eq{"teacher_id": filter.TeacherID})
	}
	if filter.StudentID != "" {
		if !validID(filter.StudentID) {
			return []class.Class{}, nil
		}
		qb = qb.Where("id IN (SELECT class_id FROM enrollment WHERE student_id = ?)", filter.StudentID)
	}
	if filter.Search != "" {
		val := ilike(filter.Search)
		qb = qb.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"subject": val}})
	}
	qb = qb.OrderBy(orderBy(ordering, classOrdering, "name ASC")...)

	var rows []classRow
	if err := selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo *classRepository) GetClass(ctx context.Context, filter class.GetFilter) (class.Class, error) {
	qb := selectClasses()
	notFound := class.ErrNotFound
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return class.Class{}, class.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.JoinCode != "":
		qb = qb.Where(sq.Eq{"join_code": filter.JoinCode})
		notFound = class.ErrJoinCodeNotFound
	default:
		return class.Class{}, class.ErrNotFound
	}

	var row classRow
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return class.Class{}, trapClassErr(err, notFound, "getting class")
	}
	return row.class(), nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	if !validID(cls.ID) {
		return class.Class{}, class.ErrNotFound
	}
	values := classValues(cls)
	delete(values, "teacher_id")
	delete(values, "created_at")

	n, err := execAffecting(ctx, repo.exec, psql.Update("class").SetMap(values).Where(sq.Eq{"id": cls.ID}))
	if err != nil {
		return class.Class{}, trapClassErr(err, class.ErrNotFound, "updating class")
	}
	if n == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return repo.GetClass(ctx, class.GetFilter{ID: cls.ID})
}

func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	if !validID(id) {
		return class.ErrNotFound
	}
	n, err := execAffecting(ctx, repo.exec, psql.Delete("class").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n == 0 {
		return class.ErrNotFound
	}
	return nil
}

func (repo *classRepository) CreateEnrollment(ctx context.Context, enr class.Enrollment) error {
	if !validID(enr.ClassID) || !validID(enr.StudentID) {
		return class.ErrNotFound
	}
	qb := psql.Insert("enrollment").
		Columns("class_id", "student_id", "joined_at").
		Values(enr.ClassID, enr.StudentID, enr.JoinedAt.UTC())
	if _, err := execAffecting(ctx, repo.exec, qb); err != nil {
		return trapClassErr(err, class.ErrNotFound, "inserting enrollment")
	}
	return nil
}

func (repo *classRepository) DeleteEnrollment(ctx context.Context, classID, studentID string) error {
	if !validID(classID) || !validID(studentID) {
		return class.ErrNotEnrolled
	}
	qb := psql.Delete("enrollment").Where(sq.Eq{"class_id": classID, "student_id": studentID})
	n, err := execAffecting(ctx, repo.exec, qb)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	if n == 0 {
		return class.ErrNotEnrolled
	}
	return nil
}

func (repo *classRepository) QueryEnrollments(ctx context.Context, classID string) ([]class.Enrollment, error) {
	enrollments := []class.Enrollment{}
	if !validID(classID) {
		return enrollments, nil
	}
	qb := psql.Select("*").From("enrollment").Where(sq.Eq{"class_id": classID}).OrderBy("joined_at ASC")
	if err := selectAll(ctx, repo.exec, &enrollments, qb); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	for i := range enrollments {
		enrollments[i].JoinedAt = enrollments[i].JoinedAt.UTC()
	}
	return enrollments, nil
}

func (repo *classRepository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	if !validID(classID) || !validID(studentID) {
		return false, nil
	}
	qb := psql.Select("1").From("enrollment").Where(sq.Eq{"class_id": classID, "student_id": studentID})
	return exists(ctx, repo.exec, qb)
}

func (repo *classRepository) HasStudent(ctx context.Context, teacherID, studentID string) (bool, error) {
	if !validID(teacherID) || !validID(studentID) {
		return false, nil
	}
	qb := psql.Select("1").
		From("enrollment").
		Join("class ON class.id = enrollment.class_id").
		Where(sq.Eq{"class.teacher_id": teacherID, "enrollment.student_id": studentID})
	return exists(ctx, repo.exec, qb)
}

type invitationRow struct {
	ID          string       `db:"id"`
	ClassID     string       `db:"class_id"`
	Email       string       `db:"email"`
	Token       string       `db:"token"`
	Status      string       `db:"status"`
	InvitedBy   string       `db:"invited_by"`
	ExpiresAt   time.Time    `db:"expires_at"`
	CreatedAt   time.Time    `db:"created_at"`
	RespondedAt sql.NullTime `db:"responded_at"`
}

func (r invitationRow) invitation() class.Invitation {
	inv := class.Invitation{
		ID:        r.ID,
		ClassID:   r.ClassID,
		Email:     r.Email,
		Token:     r.Token,
		Status:    r.Status,
		InvitedBy: r.InvitedBy,
		ExpiresAt: r.ExpiresAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.RespondedAt.Valid {
		t := r.RespondedAt.Time.UTC()
		inv.RespondedAt = &t
	}
	return inv
}

func (repo *classRepository) CreateInvitation(ctx context.Context, inv class.Invitation) (class.Invitation, error) {
	qb := psql.Insert("invitation").
		SetMap(map[string]interface{}{
			"id":           uuid.New().String(),
			"class_id":     inv.ClassID,
			"email":        inv.Email,
			"token":        inv.Token,
			"status":       inv.Status,
			"invited_by":   inv.InvitedBy,
			"expires_at":   inv.ExpiresAt.UTC(),
			"created_at":   inv.CreatedAt.UTC(),
			"responded_at": nullTimePtr(inv.RespondedAt),
		}).
		Suffix("RETURNING *")

	var row invitationRow
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return class.Invitation{}, errors.Wrap(err, "inserting invitation")
	}
	return row.invitation(), nil
}

func (repo *classRepository) QueryInvitations(ctx context.Context, filter class.InvitationFilter) ([]class.Invitation, error) {
	qb := psql.Select("*").From("invitation")
	if filter.ClassID != "" {
		if !validID(filter.ClassID) {
			return []class.Invitation{}, nil
		}
		qb = qb.Where(sq.Eq{"class_id": filter.ClassID})
	}
	if filter.Email != "" {
		qb = qb.Where(sq.Eq{"email": filter.Email})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": filter.Status})
	}
	qb = qb.OrderBy("created_at DESC")

	var rows []invitationRow
	if err := selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying invitations")
	}
	invitations := make([]class.Invitation, 0, len(rows))
	for _, r := range rows {
		invitations = append(invitations, r.invitation())
	}
	return invitations, nil
}

func (repo *classRepository) GetInvitation(ctx context.Context, id, token string) (class.Invitation, error) {
	qb := psql.Select("*").From("invitation")
	switch {
	case id != "":
		if !validID(id) {
			return class.Invitation{}, class.ErrInvitationNotFound
		}
		qb = qb.Where(sq.Eq{"id": id})
	case token != "":
		qb = qb.Where(sq.Eq{"token": token})
	default:
		return class.Invitation{}, class.ErrInvitationNotFound
	}

	var row invitationRow
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return class.Invitation{}, trapClassErr(err, class.ErrInvitationNotFound, "getting invitation")
	}
	return row.invitation(), nil
}

func (repo *classRepository) UpdateInvitation(ctx context.Context, inv class.Invitation) (class.Invitation, error) {
	if !validID(inv.ID) {
		return class.Invitation{}, class.ErrInvitationNotFound
	}
	qb := psql.Update("invitation").
		SetMap(map[string]interface{}{
			"token":        inv.Token,
			"status":       inv.Status,
			"invited_by":   inv.InvitedBy,
			"expires_at":   inv.ExpiresAt.UTC(),
			"responded_at": nullTimePtr(inv.RespondedAt),
		}).
		Where(sq.Eq{"id": inv.ID}).
		Suffix("RETURNING *")

	var row invitationRow
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return class.Invitation{}, trapClassErr(err, class.ErrInvitationNotFound, "updating invitation")
	}
	return row.invitation(), nil
}
