package prompt

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/core/persona"
)

func TestBuildRemodel(t *testing.T) {
	req, err := BuildRemodel(RemodelInput{
		Title:          "Photosynthesis",
		Instructions:   "Keep the diagram question",
		Content:        "Explain how plants make food.",
		Persona:        persona.Dyslexia,
		Accommodations: []string{"audio support"},
		GradeLevel:     "5",
	})
	require.NoError(t, err)

	assert.Equal(t, FeatureRemodel, req.Feature)
	assert.True(t, req.JSON)
	assert.Nil(t, req.Temperature)
	assert.Contains(t, req.System, "JSON")
	assert.Contains(t, req.Prompt, `"Dyslexia" learning profile`)
	for _, g := range Guidance(persona.Dyslexia) {
		assert.Contains(t, req.Prompt, "- "+g)
	}
	assert.Contains(t, req.Prompt, "- audio support")
	assert.Contains(t, req.Prompt, "Grade level: 5")
	assert.Contains(t, req.Prompt, "Teacher instructions: Keep the diagram question")
	assert.Contains(t, req.Prompt, "Explain how plants make food.")
	assert.NotContains(t, req.Prompt, "Teacher notes about the student")
}

func TestBuildGrade(t *testing.T) {
	req, err := BuildGrade(GradeInput{
		Title:          "Essay",
		Content:        "Write about your summer.",
		Submission:     "I went to the sea.",
		MaxScore:       20,
		Persona:        persona.ADHD,
		Accommodations: []string{"extra time", "chunked steps"},
	})
	require.NoError(t, err)

	assert.Equal(t, FeatureGrade, req.Feature)
	assert.True(t, req.JSON)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, float32(0), *req.Temperature)
	assert.Contains(t, req.Prompt, "Student learning profile: ADHD (accommodations: extra time, chunked steps)")
	assert.Contains(t, req.Prompt, "Maximum score: 20")
	assert.Contains(t, req.Prompt, "I went to the sea.")
	assert.NotContains(t, req.Prompt, "Teacher instructions")
}

func TestGuidanceIsACopy(t *testing.T) {
	g := Guidance(persona.Autism)
	g[0] = "changed"
	assert.NotEqual(t, "changed", Guidance(persona.Autism)[0])
	assert.Equal(t, Guidance(persona.Generic), Guidance(persona.Persona("unknown")))
}

func TestParseRemodel(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    RemodelResult
		wantErr bool
	}{
		{
			name: "plain",
			raw:  `{"title": " Plants ", "content": "Step 1", "accommodations": ["chunked", "chunked", " "], "teacher_notes": "ok"}`,
			want: RemodelResult{Title: "Plants", Content: "Step 1", Accommodations: []string{"chunked"}, TeacherNotes: "ok"},
		},
		{
			name: "fenced with prose",
			raw:  "Sure! Here it is:\n```json\n{\"content\": \"Do {this}\"}\n```\nGood luck.",
			want: RemodelResult{Content: "Do {this}", Accommodations: []string{}},
		},
		{
			name: "long title",
			raw:  `{"title": "` + strings.Repeat("é", 250) + `", "content": "x"}`,
			want: RemodelResult{Title: strings.Repeat("é", MaxTitleLen), Content: "x", Accommodations: []string{}},
		},
		{name: "missing content", raw: `{"title": "x"}`, wantErr: true},
		{name: "no object", raw: "I cannot help with that.", wantErr: true},
		{name: "broken json", raw: `{"content": "x"`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRemodel(tc.raw)
			if tc.wantErr {
				assert.Equal(t, ErrMalformedResponse, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseGrade(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore float64
		wantErr   bool
	}{
		{"number", `{"score": 17.5, "feedback": "Nice"}`, 17.5, false},
		{"above max", `{"score": 140, "feedback": "Nice"}`, 20, false},
		{"negative", `{"score": -3, "feedback": "Nice"}`, 0, false},
		{"string", `{"score": "12", "feedback": "Nice"}`, 12, false},
		{"fraction string", `{"score": "15/20", "feedback": "Nice"}`, 15, false},
		{"rounded", `{"score": 12.3456, "feedback": "Nice"}`, 12.35, false},
		{"missing score", `{"feedback": "Nice"}`, 0, true},
		{"bad score", `{"score": "great", "feedback": "Nice"}`, 0, true},
		{"missing feedback", `{"score": 10, "feedback": "  "}`, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseGrade(tc.raw, 20)
			if tc.wantErr {
				assert.Equal(t, ErrMalformedResponse, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantScore, got.Score)
			assert.Equal(t, "Nice", got.Feedback)
			assert.Equal(t, []string{}, got.Strengths)
			assert.Equal(t, []string{}, got.Improvements)
		})
	}
}
