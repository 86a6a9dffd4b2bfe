// Package inmemdb implements the core repositories in memory, for tests and local runs without Postgres.
package inmemdb

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/assignment"
	"github.com/alloqly/alloqly/core/class"
	"github.com/alloqly/alloqly/core/profile"
	"github.com/alloqly/alloqly/core/submission"
	"github.com/alloqly/alloqly/core/user"
)

// DB holds every table behind a single lock so that cross-table reads (class student counts) stay consistent.
type DB struct {
	mutex sync.RWMutex

	users       map[string]user.User
	profiles    map[string]profile.Profile
	classes     map[string]class.Class
	enrollments map[enrollmentKey]class.Enrollment
	invitations map[string]class.Invitation
	assignments map[string]assignment.Assignment
	variants    map[string]assignment.Variant
	submissions map[string]submission.Submission
}

type enrollmentKey struct {
	classID, studentID string
}

func Open() *DB {
	db := new(DB)
	db.init()
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.init()
}

func (db *DB) init() {
	db.users = make(map[string]user.User)
	db.profiles = make(map[string]profile.Profile)
	db.classes = make(map[string]class.Class)
	db.enrollments = make(map[enrollmentKey]class.Enrollment)
	db.invitations = make(map[string]class.Invitation)
	db.assignments = make(map[string]assignment.Assignment)
	db.variants = make(map[string]assignment.Variant)
	db.submissions = make(map[string]submission.Submission)
}

type comparer[T any] func(a, b T) int

// sortBy sorts items by ordering, falling back to fallback when no ordering field is known.
func sortBy[T any](items []T, ordering []core.DBOrdering, fields map[string]comparer[T], fallback ...core.DBOrdering) {
	known := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := fields[strings.ToLower(ord.Field)]; ok {
			known = append(known, core.DBOrdering{Field: strings.ToLower(ord.Field), Ascending: ord.Ascending})
		}
	}
	if len(known) == 0 {
		known = fallback
	}
	slices.SortStableFunc(items, func(a, b T) int {
		for _, ord := range known {
			c := fields[ord.Field](a, b)
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareTimes(a, b time.Time) int {
	return a.Compare(b)
}

// compareTimePtrs sorts nil last in ascending order, like Postgres NULLs.
func compareTimePtrs(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func compareStrings(a, b string) int {
	return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func copyStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return append([]string{}, ss...)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
