package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/profile"
	inmemdb "github.com/alloqly/alloqly/storage/database/inmem"
	testutil "github.com/alloqly/alloqly/tests"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	users := inmemdb.NewUserRepository(db)
	svc := profile.NewService(inmemdb.NewProfileRepository(db))

	amina := testutil.CreateStudent(t, users, "amina")
	tendai := testutil.CreateStudent(t, users, "tendai")
	chipo := testutil.CreateStudent(t, users, "chipo")

	t.Run("default profile", func(t *testing.T) {
		p, err := svc.Get(ctx, amina.ID)
		require.NoError(t, err)
		assert.Equal(t, persona.Generic, p.Persona)
		assert.Equal(t, []string{}, p.Accommodations)
	})

	t.Run("update", func(t *testing.T) {
		p, err := svc.Update(ctx, amina.ID, profile.UpdateProfile{Persona: "Dyslexia", Notes: "prefers audio"})
		require.NoError(t, err)
		assert.Equal(t, persona.Dyslexia, p.Persona)
		assert.Equal(t, []string{}, p.Accommodations)
		assert.False(t, p.UpdatedAt.IsZero())

		got, err := svc.Get(ctx, amina.ID)
		require.NoError(t, err)
		assert.Equal(t, "prefers audio", got.Notes)

		_, err = svc.Update(ctx, amina.ID, profile.UpdateProfile{Persona: "unknown"})
		assert.Error(t, err)
	})

	t.Run("personas", func(t *testing.T) {
		testutil.SetPersona(t, inmemdb.NewProfileRepository(db), tendai.ID, persona.ADHD)

		personas, err := svc.Personas(ctx, []string{chipo.ID, amina.ID, tendai.ID})
		require.NoError(t, err)
		assert.Equal(t, []persona.Persona{persona.ADHD, persona.Dyslexia, persona.Generic}, personas)

		personas, err = svc.Personas(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, personas)

		many, err := svc.GetMany(ctx, []string{amina.ID, chipo.ID})
		require.NoError(t, err)
		assert.Len(t, many, 2)
		assert.Equal(t, persona.Generic, many[chipo.ID].Persona)
	})
}

func TestUpdateProfile_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	up := profile.UpdateProfile{Persona: " ADHD ", Accommodations: []string{" extra time ", ""}}
	require.NoError(t, up.Validate(validate))
	assert.Equal(t, "adhd", up.Persona)
	assert.Equal(t, []string{"extra time"}, up.Accommodations)

	up = profile.UpdateProfile{Persona: "robot"}
	assert.Error(t, up.Validate(validate))
}
