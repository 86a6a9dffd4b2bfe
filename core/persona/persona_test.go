package persona

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/core"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Persona
		wantErr bool
	}{
		{in: "adhd", want: ADHD},
		{in: " ADHD ", want: ADHD},
		{in: "Dyslexia", want: Dyslexia},
		{in: "generic", want: Generic},
		{in: "", wantErr: true},
		{in: "gifted", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Equal(t, ErrUnknown, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseList(t *testing.T) {
	got, err := ParseList([]string{"visual", "ADHD", "adhd", "hearing"})
	require.NoError(t, err)
	assert.Equal(t, []Persona{Visual, ADHD, Hearing}, got)

	_, err = ParseList([]string{"autism", "lol"})
	assert.Error(t, err)
}

func TestAccommodationsAreCopies(t *testing.T) {
	acc := Dyslexia.Accommodations()
	require.NotEmpty(t, acc)
	acc[0] = "changed"
	assert.NotEqual(t, "changed", Dyslexia.Accommodations()[0])
}

func TestAllInfos(t *testing.T) {
	infos := AllInfos()
	require.Len(t, infos, len(All))
	for i, info := range infos {
		assert.Equal(t, All[i], info.Value)
		assert.NotEmpty(t, info.Label)
		assert.NotEmpty(t, info.Accommodations)
	}
}

func TestPersonaValidation(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	type data struct {
		One  string    `json:"one" validate:"omitempty,persona"`
		Many []Persona `json:"many" validate:"omitempty,dive,persona"`
	}
	assert.NoError(t, validate.Struct(data{One: "Autism", Many: []Persona{Visual}}))

	err := validate.Struct(data{One: "lol"})
	var vErrs validator.ValidationErrors
	require.True(t, errors.As(err, &vErrs))
	assert.Equal(t, "one", vErrs[0].Field())
	assert.Equal(t, personaText, vErrs[0].Translate(translator))

	assert.Error(t, validate.Struct(data{Many: []Persona{"lol"}}))
}
