// Package persona defines the fixed set of learner-support categories an assignment can be remodeled for.
package persona

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
)

type Persona string

const (
	ADHD     Persona = "adhd"
	Autism   Persona = "autism"
	Dyslexia Persona = "dyslexia"
	Visual   Persona = "visual"
	Hearing  Persona = "hearing"
	Generic  Persona = "generic"
)

var (
	All = []Persona{ADHD, Autism, Dyslexia, Visual, Hearing, Generic}

	ErrUnknown = errors.New("unknown persona")

	personaTag  = "persona"
	personaText = "must be one of: adhd, autism, dyslexia, visual, hearing, generic"

	labels = map[Persona]string{
		ADHD:     "ADHD",
		Autism:   "Autism",
		Dyslexia: "Dyslexia",
		Visual:   "Visual impairment",
		Hearing:  "Hearing impairment",
		Generic:  "General support",
	}

	defaultAccommodations = map[Persona][]string{
		ADHD: {
			"Break the work into short, numbered steps",
			"Add checkboxes and time estimates for each step",
			"Highlight key terms and the expected output",
		},
		Autism: {
			"Use literal, unambiguous wording",
			"State expectations and success criteria explicitly",
			"Keep a predictable, consistent structure",
		},
		Dyslexia: {
			"Use simplified vocabulary and short sentences",
			"Use short paragraphs and bullet lists",
			"Provide a glossary for subject-specific words",
		},
		Visual: {
			"Make the text screen-reader friendly with clear headings",
			"Describe every image, chart or diagram in words",
			"Never rely on color or layout alone to convey meaning",
		},
		Hearing: {
			"Provide written alternatives for any audio or video",
			"Use visual cues and written step-by-step directions",
			"Avoid instructions that are only given orally",
		},
		Generic: {
			"Use clear headings and plain language",
			"List the success criteria",
		},
	}
)

// Info describes a Persona for API consumers.
type Info struct {
	Value          Persona  `json:"value"`
	Label          string   `json:"label"`
	Accommodations []string `json:"accommodations"`
}

// Parse returns the Persona matching s (case insensitive).
func Parse(s string) (Persona, error) {
	p := Persona(core.CleanString(s, true /* lower */))
	if !p.Valid() {
		return "", errors.Wrapf(ErrUnknown, "%q", s)
	}
	return p, nil
}

// ParseList parses every value of ss, dropping duplicates while keeping order.
func ParseList(ss []string) ([]Persona, error) {
	personas := make([]Persona, 0, len(ss))
	seen := make(map[Persona]bool, len(ss))
	for _, s := range ss {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			personas = append(personas, p)
		}
	}
	return personas, nil
}

func (p Persona) Valid() bool {
	_, ok := labels[p]
	return ok
}

func (p Persona) Label() string {
	if l, ok := labels[p]; ok {
		return l
	}
	return strings.ToUpper(string(p))
}

// Accommodations returns a copy of the default accommodations of p.
func (p Persona) Accommodations() []string {
	acc := defaultAccommodations[p]
	out := make([]string, len(acc))
	copy(out, acc)
	return out
}

func (p Persona) Info() Info {
	return Info{Value: p, Label: p.Label(), Accommodations: p.Accommodations()}
}

// AllInfos describes every Persona, in display order.
func AllInfos() []Info {
	infos := make([]Info, 0, len(All))
	for _, p := range All {
		infos = append(infos, p.Info())
	}
	return infos
}

// InitValidators registers the "persona" validation tag, usable on string and Persona fields (and their slices with dive).
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(personaTag, personaValidation)
	core.RegisterCustomTranslation(validate, translator, personaTag, personaText)
}

func personaValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Persona:
		return v.Valid()
	case string:
		_, err := Parse(v)
		return err == nil
	}
	return false
}
