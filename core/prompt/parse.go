package prompt

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/alloqly/alloqly/core"
)

// MaxTitleLen bounds the title of a remodeled assignment.
const MaxTitleLen = 200

var ErrMalformedResponse = errors.New("the AI service returned an unexpected response")

type RemodelResult struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Accommodations []string `json:"accommodations"`
	TeacherNotes   string   `json:"teacher_notes"`
}

type GradeResult struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// ParseRemodel decodes the answer to a BuildRemodel request.
func ParseRemodel(raw string) (RemodelResult, error) {
	var res RemodelResult
	if err := decodeObject(raw, &res); err != nil {
		return RemodelResult{}, err
	}
	res.Title = strings.TrimSpace(core.TruncateRunes(core.CleanString(res.Title), MaxTitleLen))
	res.Content = strings.TrimSpace(res.Content)
	res.TeacherNotes = core.CleanString(res.TeacherNotes)
	res.Accommodations = core.CleanStrings(res.Accommodations)
	if res.Accommodations == nil {
		res.Accommodations = []string{}
	}
	if res.Content == "" {
		return RemodelResult{}, errors.Wrap(ErrMalformedResponse, "remodel: missing content")
	}
	return res, nil
}

// ParseGrade decodes the answer to a BuildGrade request, clamping the score to [0, maxScore].
func ParseGrade(raw string, maxScore float64) (GradeResult, error) {
	var payload struct {
		Score        json.RawMessage `json:"score"`
		Feedback     string          `json:"feedback"`
		Strengths    []string        `json:"strengths"`
		Improvements []string        `json:"improvements"`
	}
	if err := decodeObject(raw, &payload); err != nil {
		return GradeResult{}, err
	}
	score, err := parseScore(payload.Score)
	if err != nil {
		return GradeResult{}, errors.Wrap(ErrMalformedResponse, "grade: "+err.Error())
	}

	res := GradeResult{
		Score:        ClampScore(score, maxScore),
		Feedback:     strings.TrimSpace(payload.Feedback),
		Strengths:    core.CleanStrings(payload.Strengths),
		Improvements: core.CleanStrings(payload.Improvements),
	}
	if res.Strengths == nil {
		res.Strengths = []string{}
	}
	if res.Improvements == nil {
		res.Improvements = []string{}
	}
	if res.Feedback == "" {
		return GradeResult{}, errors.Wrap(ErrMalformedResponse, "grade: missing feedback")
	}
	return res, nil
}

// ClampScore bounds score to [0, max], rounded to two decimals.
func ClampScore(score, max float64) float64 {
	switch {
	case math.IsNaN(score) || score < 0:
		score = 0
	case score > max:
		score = max
	}
	return math.Round(score*100) / 100
}

// scores come back as numbers, numeric strings or "n/m" strings
func parseScore(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing score")
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, errors.New("invalid score")
	}
	str = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	if i := strings.Index(str, "/"); i >= 0 {
		str = strings.TrimSpace(str[:i])
	}
	num, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, errors.New("invalid score")
	}
	return num, nil
}

// decodeObject unmarshals the first JSON object of raw into v, ignoring markdown fences and surrounding prose.
func decodeObject(raw string, v interface{}) error {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return errors.Wrap(ErrMalformedResponse, "no JSON object found")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return errors.Wrap(ErrMalformedResponse, err.Error())
	}
	return nil
}
