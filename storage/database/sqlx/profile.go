package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
)

type profileRow struct {
	UserID         string         `db:"user_id"`
	Persona        string         `db:"persona"`
	Accommodations pq.StringArray `db:"accommodations"`
	Notes          string         `db:"notes"`
	GradeLevel     string         `db:"grade_level"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r profileRow) profile() profile.Profile {
	return profile.Profile{
		UserID:         r.UserID,
		Persona:        persona.Persona(r.Persona),
		Accommodations: fromArray(r.Accommodations),
		Notes:          r.Notes,
		GradeLevel:     r.GradeLevel,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type profileRepository struct {
	exec core.DBExecutor
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(exec core.DBExecutor) profile.Repository {
	return &profileRepository{exec: exec}
}

func (repo *profileRepository) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	if !validID(userID) {
		return profile.Profile{}, profile.ErrNotFound
	}
	var row profileRow
	err := getOne(ctx, repo.exec, &row, psql.Select("*").From("profile").Where(sq.Eq{"user_id": userID}))
	if err == sql.ErrNoRows {
		return profile.Profile{}, profile.ErrNotFound
	} else if err != nil {
		return profile.Profile{}, errors.Wrap(err, "getting profile")
	}
	return row.profile(), nil
}

func (repo *profileRepository) QueryProfiles(ctx context.Context, userIDs []string) ([]profile.Profile, error) {
	ids := validIDs(userIDs)
	if len(ids) == 0 {
		return []profile.Profile{}, nil
	}
	var rows []profileRow
	if err := selectAll(ctx, repo.exec, &rows, psql.Select("*").From("profile").Where(sq.Eq{"user_id": ids})); err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	profiles := make([]profile.Profile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, r.profile())
	}
	return profiles, nil
}

func (repo *profileRepository) UpsertProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if !validID(p.UserID) {
		return profile.Profile{}, profile.ErrNotFound
	}
	qb := psql.Insert("profile").
		SetMap(map[string]interface{}{
			"user_id":        p.UserID,
			"persona":        string(p.Persona),
			"accommodations": stringArray(p.Accommodations),
			"notes":          p.Notes,
			"grade_level":    p.GradeLevel,
			"updated_at":     p.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			persona = EXCLUDED.persona, accommodations = EXCLUDED.accommodations, notes = EXCLUDED.notes,
			grade_level = EXCLUDED.grade_level, updated_at = EXCLUDED.updated_at
			RETURNING *`)

	var row profileRow
	if err := getOne(ctx, repo.exec, &row, qb); err != nil {
		return profile.Profile{}, errors.Wrap(err, "upserting profile")
	}
	return row.profile(), nil
}
