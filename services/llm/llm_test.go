package llmsvc

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloqly/alloqly/core"
	"github.com/alloqly/alloqly/core/persona"
	"github.com/alloqly/alloqly/core/prompt"
	logsvc "github.com/alloqly/alloqly/services/logger"
)

func newTestLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
}

func TestOpenAIService(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "1", "object": "chat.completion", "model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"content\": \"ok\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}}`)
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.LLM.APIKey = "test-key"
	conf.LLM.BaseURL = srv.URL + "/v1/"
	conf.LLM.Temperature = 0.4
	svc := NewOpenAIService(newTestLogger(), conf)

	req, err := prompt.BuildGrade(prompt.GradeInput{Title: "t", Content: "c", Submission: "s", MaxScore: 10, Persona: persona.Generic})
	require.NoError(t, err)
	out, err := svc.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"content": "ok"}`, out)

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, got["response_format"])
	msgs, ok := got["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", msgs[1].(map[string]interface{})["role"])

	// grading asks for a zero temperature, which must still reach the API
	temp, ok := got["temperature"].(float64)
	require.True(t, ok, "temperature missing from the grade request")
	assert.Greater(t, temp, 0.0)
	assert.Less(t, temp, 1e-6)

	got = nil
	req, err = prompt.BuildRemodel(prompt.RemodelInput{Title: "t", Content: "c", Persona: persona.Dyslexia})
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), req)
	require.NoError(t, err)
	temp, ok = got["temperature"].(float64)
	require.True(t, ok, "temperature missing from the remodel request")
	assert.InDelta(t, 0.4, temp, 1e-6)
}

func TestOpenAIServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": {"message": "boom", "type": "server_error"}}`)
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.LLM.BaseURL = srv.URL
	svc := NewOpenAIService(newTestLogger(), conf)

	_, err := svc.Complete(context.Background(), core.CompletionRequest{Feature: prompt.FeatureRemodel, Prompt: "hi"})
	assert.True(t, core.IsLLMUnavailable(err))
}

func TestOfflineService(t *testing.T) {
	svc := NewOfflineService(newTestLogger())

	req, err := prompt.BuildRemodel(prompt.RemodelInput{Title: "Volcanoes", Content: "Describe a volcano.", Persona: persona.ADHD})
	require.NoError(t, err)
	out, err := svc.Complete(context.Background(), req)
	require.NoError(t, err)
	rem, err := prompt.ParseRemodel(out)
	require.NoError(t, err)
	assert.Equal(t, "Volcanoes", rem.Title)
	assert.Equal(t, "[offline] Describe a volcano.", rem.Content)

	req, err = prompt.BuildGrade(prompt.GradeInput{Title: "Volcanoes", Content: "c", Submission: "s", MaxScore: 50, Persona: persona.ADHD})
	require.NoError(t, err)
	out, err = svc.Complete(context.Background(), req)
	require.NoError(t, err)
	grade, err := prompt.ParseGrade(out, 50)
	require.NoError(t, err)
	assert.Equal(t, float64(40), grade.Score)

	t.Run("malformed maximum score", func(t *testing.T) {
		out, err := svc.Complete(context.Background(), core.CompletionRequest{
			Feature: prompt.FeatureGrade,
			Prompt:  "Assignment title: Volcanoes\nMaximum score: 1.2.3\n",
		})
		require.NoError(t, err)
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, float64(0), got["score"])
	})
}
