// Package prompt builds the LLM requests for remodeling and grading and parses their JSON answers.
package prompt

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/persona"
)

// Features, used to label LLM requests.
const (
	FeatureRemodel = "remodel"
	FeatureGrade   = "grade"
)

var guidance = map[persona.Persona][]string{
	persona.ADHD: {
		"Break the work into short, clearly numbered steps with one action per step.",
		"Put the most important instruction first and highlight key words in bold.",
		"Add a checkbox and a rough time estimate to every step.",
		"Remove decorative or off-task text.",
	},
	persona.Autism: {
		"Use literal, unambiguous language; avoid idioms, sarcasm and figurative speech.",
		"State exactly what must be produced, in which format and how it will be judged.",
		"Keep a predictable structure: goal, materials, steps, success criteria.",
		"Explain any change of topic or task explicitly.",
	},
	persona.Dyslexia: {
		"Use short sentences and common words; define any unavoidable hard word in brackets.",
		"Use short paragraphs, headings and bullet lists instead of dense text.",
		"Avoid italics, underlining and blocks of capital letters.",
		"Repeat key instructions rather than referring back to earlier text.",
	},
	persona.Visual: {
		"Make the text screen-reader friendly: clear headings and simple lists.",
		"Describe every image, chart or diagram in words.",
		"Never rely on colour, position or layout to carry meaning.",
		"Turn tables into linear lists when possible.",
	},
	persona.Hearing: {
		"Replace references to audio or video with written alternatives such as transcripts or captions.",
		"Give all instructions in writing, including anything normally said aloud in class.",
		"Use visual cues such as headings and numbered steps.",
		"Avoid tasks that depend on listening, or provide an equivalent reading task.",
	},
	persona.Generic: {
		"Keep the text clear and well organized, following universal design for learning.",
		"Use headings, numbered steps and explicit success criteria.",
	},
}

var (
	remodelSystem = strings.Join([]string{
		"You are an inclusive-education specialist who adapts school assignments for neurodivergent learners",
		"and learners with disabilities. Keep the learning objectives and difficulty of the original assignment;",
		"change only how it is presented. Reply with a single JSON object and nothing else.",
	}, " ")

	gradeSystem = strings.Join([]string{
		"You are a fair and encouraging teacher grading a student's work. Grade against the assignment,",
		"take the student's learning profile into account for presentation but not for content mastery,",
		"and write feedback addressed to the student. Reply with a single JSON object and nothing else.",
	}, " ")

	remodelTmpl = template.Must(template.New("remodel").Parse(`Adapt the following assignment for a student with the "{{.Label}}" learning profile.

Guidelines for this profile:
{{range .Guidance}}- {{.}}
{{end}}{{if .Accommodations}}
Accommodations this student needs:
{{range .Accommodations}}- {{.}}
{{end}}{{end}}{{if .GradeLevel}}
Grade level: {{.GradeLevel}}
{{end}}{{if .Notes}}
Teacher notes about the student: {{.Notes}}
{{end}}
Assignment title: {{.Title}}
{{if .Instructions}}Teacher instructions: {{.Instructions}}
{{end}}
Assignment text:
"""
{{.Content}}
"""

Answer with this JSON shape:
{"title": "adapted title", "content": "the full adapted assignment text", "accommodations": ["each accommodation applied"], "teacher_notes": "short notes for the teacher"}`))

	gradeTmpl = template.Must(template.New("grade").Funcs(template.FuncMap{"join": strings.Join}).Parse(`Grade the student submission below.

Assignment title: {{.Title}}
{{if .Instructions}}Teacher instructions: {{.Instructions}}
{{end}}
Assignment text:
"""
{{.Content}}
"""

Student learning profile: {{.Label}}{{if .Accommodations}} (accommodations: {{join .Accommodations ", "}}){{end}}
Maximum score: {{.MaxScore}}

Student submission:
"""
{{.Submission}}
"""

Answer with this JSON shape:
{"score": <number between 0 and {{.MaxScore}}>, "feedback": "feedback for the student", "strengths": ["..."], "improvements": ["..."]}`))
)

// Guidance returns the prompt guidelines for p.
func Guidance(p persona.Persona) []string {
	g, ok := guidance[p]
	if !ok {
		g = guidance[persona.Generic]
	}
	return append([]string(nil), g...)
}

// RemodelInput is what is known about the assignment and the learner when remodeling.
type RemodelInput struct {
	Title          string
	Instructions   string
	Content        string
	Persona        persona.Persona
	Accommodations []string
	Notes          string
	GradeLevel     string
}

// BuildRemodel returns the completion request that adapts in.Content for in.Persona.
func BuildRemodel(in RemodelInput) (core.CompletionRequest, error) {
	var buf bytes.Buffer
	err := remodelTmpl.Execute(&buf, struct {
		RemodelInput
		Label    string
		Guidance []string
	}{in, in.Persona.Label(), Guidance(in.Persona)})
	if err != nil {
		return core.CompletionRequest{}, err
	}
	return core.CompletionRequest{
		Feature: FeatureRemodel,
		System:  remodelSystem,
		Prompt:  buf.String(),
		JSON:    true,
	}, nil
}

// GradeInput is what is known about the assignment, the learner and their work when grading.
type GradeInput struct {
	Title          string
	Instructions   string
	Content        string
	Submission     string
	MaxScore       float64
	Persona        persona.Persona
	Accommodations []string
}

// BuildGrade returns the completion request that grades in.Submission.
func BuildGrade(in GradeInput) (core.CompletionRequest, error) {
	var buf bytes.Buffer
	err := gradeTmpl.Execute(&buf, struct {
		GradeInput
		Label string
	}{in, in.Persona.Label()})
	if err != nil {
		return core.CompletionRequest{}, err
	}
	zero := float32(0)
	return core.CompletionRequest{
		Feature:     FeatureGrade,
		System:      gradeSystem,
		Prompt:      buf.String(),
		JSON:        true,
		Temperature: &zero,
	}, nil
}
