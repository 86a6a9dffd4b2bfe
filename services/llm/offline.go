package llmsvc

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/prompt"
)

var (
	offlineTitle    = regexp.MustCompile(`(?m)^Assignment title: (.*)$`)
	offlineMaxScore = regexp.MustCompile(`(?m)^Maximum score: ([0-9.]+)$`)
	offlineText     = regexp.MustCompile(`(?s)Assignment text:\n"""\n(.*?)\n"""`)
)

// offlineService answers without calling any model, so that the app runs in development without an API key.
type offlineService struct {
	logger core.Logger
}

var _ core.LLMService = (*offlineService)(nil)

func NewOfflineService(logger core.Logger) core.LLMService {
	return &offlineService{logger: logger}
}

func (svc *offlineService) Complete(_ context.Context, req core.CompletionRequest) (string, error) {
	svc.logger.Debug("offline llm: answering " + req.Feature + " with a canned response")
	requestsTotal.WithLabelValues(req.Feature, "ok").Inc()

	var answer interface{}
	switch req.Feature {
	case prompt.FeatureGrade:
		score := 0.0
		if m := offlineMaxScore.FindStringSubmatch(req.Prompt); m != nil {
			var err error
			if score, err = strconv.ParseFloat(m[1], 64); err != nil {
				svc.logger.Debug("offline llm: invalid maximum score " + m[1])
				score = 0
			}
		}
		answer = map[string]interface{}{
			"score":        score * 0.8,
			"feedback":     "[offline] Automatic feedback is not available in this environment.",
			"strengths":    []string{},
			"improvements": []string{},
		}
	default:
		title, content := "", ""
		if m := offlineTitle.FindStringSubmatch(req.Prompt); m != nil {
			title = strings.TrimSpace(m[1])
		}
		if m := offlineText.FindStringSubmatch(req.Prompt); m != nil {
			content = m[1]
		}
		answer = map[string]interface{}{
			"title":          title,
			"content":        "[offline] " + content,
			"accommodations": []string{},
			"teacher_notes":  "Generated offline: the assignment text was not adapted.",
		}
	}
	out, err := json.Marshal(answer)
	return string(out), err
}
