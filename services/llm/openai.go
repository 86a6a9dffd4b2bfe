package llmsvc

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/alloqly/alloqly/core"
)

type openAIService struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      core.Logger
}

var _ core.LLMService = (*openAIService)(nil)

// NewOpenAIService returns an LLMService calling an OpenAI compatible chat completion API.
func NewOpenAIService(logger core.Logger, conf *core.Config) core.LLMService {
	cfg := openai.DefaultConfig(conf.LLM.APIKey)
	if conf.LLM.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(conf.LLM.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: conf.LLM.Timeout}

	limit := rate.Inf
	if conf.LLM.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(conf.LLM.RequestsPerMinute) / 60)
	}
	return &openAIService{
		client:      openai.NewClientWithConfig(cfg),
		model:       conf.LLM.Model,
		temperature: conf.LLM.Temperature,
		maxTokens:   conf.LLM.MaxTokens,
		timeout:     conf.LLM.Timeout,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

func (svc *openAIService) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	if svc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.timeout)
		defer cancel()
	}
	if err := svc.limiter.Wait(ctx); err != nil {
		requestsTotal.WithLabelValues(req.Feature, "throttled").Inc()
		return "", errors.Wrap(core.ErrLLMUnavailable, "rate limiter: "+err.Error())
	}

	chatReq := openai.ChatCompletionRequest{
		Model: svc.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: svc.temperature,
		MaxTokens:   svc.maxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}
	if chatReq.Temperature <= 0 {
		// a zero temperature is left out of the request body and the API then defaults to 1
		chatReq.Temperature = math.SmallestNonzeroFloat32
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := svc.client.CreateChatCompletion(ctx, chatReq)
	requestDuration.WithLabelValues(req.Feature).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(req.Feature, "error").Inc()
		svc.logger.Error(fmt.Sprintf("llm %s completion failed: %v", req.Feature, err), err)
		return "", errors.Wrap(core.ErrLLMUnavailable, err.Error())
	}

	tokensTotal.WithLabelValues(req.Feature, "prompt").Add(float64(resp.Usage.PromptTokens))
	tokensTotal.WithLabelValues(req.Feature, "completion").Add(float64(resp.Usage.CompletionTokens))
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		requestsTotal.WithLabelValues(req.Feature, "empty").Inc()
		return "", errors.Wrap(core.ErrLLMUnavailable, "empty completion")
	}
	requestsTotal.WithLabelValues(req.Feature, "ok").Inc()
	return resp.Choices[0].Message.Content, nil
}
