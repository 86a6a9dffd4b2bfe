package profile

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core/persona"
)

var ErrNotFound = errors.New("profile not found")

type (
	Repository interface {
		GetProfile(ctx context.Context, userID string) (Profile, error)
		// QueryProfiles returns the stored profiles of userIDs; users without a profile are omitted.
		QueryProfiles(ctx context.Context, userIDs []string) ([]Profile, error)
		UpsertProfile(ctx context.Context, p Profile) (Profile, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the profile of userID, or the Default one if none was set.
func (svc *Service) Get(ctx context.Context, userID string) (Profile, error) {
	p, err := svc.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Default(userID), nil
		}
		return Profile{}, errors.Wrap(err, "getting profile")
	}
	return p, nil
}

// GetMany returns the profiles of userIDs keyed by user ID, using Default for the missing ones.
func (svc *Service) GetMany(ctx context.Context, userIDs []string) (map[string]Profile, error) {
	profiles := make(map[string]Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	stored, err := svc.repo.QueryProfiles(ctx, userIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	for _, p := range stored {
		profiles[p.UserID] = p
	}
	for _, id := range userIDs {
		if _, ok := profiles[id]; !ok {
			profiles[id] = Default(id)
		}
	}
	return profiles, nil
}

// Personas returns the distinct personas of userIDs, in persona.All order.
func (svc *Service) Personas(ctx context.Context, userIDs []string) ([]persona.Persona, error) {
	profiles, err := svc.GetMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	found := make(map[persona.Persona]bool, len(persona.All))
	for _, p := range profiles {
		found[p.Persona] = true
	}
	personas := make([]persona.Persona, 0, len(found))
	for _, p := range persona.All {
		if found[p] {
			personas = append(personas, p)
		}
	}
	return personas, nil
}

// Update sets the profile of userID; up must have been validated.
func (svc *Service) Update(ctx context.Context, userID string, up UpdateProfile) (Profile, error) {
	prs, err := persona.Parse(up.Persona)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		UserID:         userID,
		Persona:        prs,
		Accommodations: up.Accommodations,
		Notes:          up.Notes,
		GradeLevel:     up.GradeLevel,
		UpdatedAt:      time.Now().UTC(),
	}
	if p.Accommodations == nil {
		p.Accommodations = []string{}
	}
	return svc.repo.UpsertProfile(ctx, p)
}
