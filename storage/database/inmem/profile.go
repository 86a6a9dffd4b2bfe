package inmemdb

import (
	"context"

	"github.com/alloqly/alloqly/core/profile"
)

type profileRepository struct {
	db *DB
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db}
}

func copyProfile(p profile.Profile) profile.Profile {
	p.Accommodations = copyStrings(p.Accommodations)
	return p
}

func (repo *profileRepository) GetProfile(_ context.Context, userID string) (profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.profiles[userID]; ok {
		return copyProfile(p), nil
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) QueryProfiles(_ context.Context, userIDs []string) ([]profile.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	profiles := make([]profile.Profile, 0, len(userIDs))
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if p, ok := repo.db.profiles[id]; ok && !seen[id] {
			seen[id] = true
			profiles = append(profiles, copyProfile(p))
		}
	}
	return profiles, nil
}

func (repo *profileRepository) UpsertProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[p.UserID]; !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	p = copyProfile(p)
	repo.db.profiles[p.UserID] = p
	return copyProfile(p), nil
}
