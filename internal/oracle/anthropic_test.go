package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
)

func anthropicServer(t *testing.T, status int, reply any, seen *anthropicRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func textReply(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}
}

func TestAnthropic_Suggest(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "test-key")
	var seen anthropicRequest
	srv := anthropicServer(t, http.StatusOK,
		textReply("```json\n{\"suggestedBotId\":\"bot-001\",\"reason\":\"cpu match\"}\n```"), &seen)

	a := NewAnthropic(AnthropicOptions{BaseURL: srv.URL + "/", APIKeyEnv: "TEST_ANTHROPIC_KEY", Model: "m-1"}, nil)
	resp, err := a.Suggest(context.Background(), debianRequest())
	require.NoError(t, err)
	assert.Equal(t, "bot-001", resp.SuggestedBotID)
	assert.Equal(t, "cpu match", resp.Reason)

	assert.Equal(t, "m-1", seen.Model)
	assert.Equal(t, 1024, seen.MaxTokens)
	require.Len(t, seen.Messages, 1)
	assert.Equal(t, "user", seen.Messages[0].Role)
	assert.Contains(t, seen.Messages[0].Content, "VM Storage (GB): 120")
}

func TestAnthropic_HTTPErrorIsPlain(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "test-key")
	srv := anthropicServer(t, http.StatusTooManyRequests, map[string]string{"error": "overloaded"}, nil)

	a := NewAnthropic(AnthropicOptions{BaseURL: srv.URL, APIKeyEnv: "TEST_ANTHROPIC_KEY"}, nil)
	_, err := a.Suggest(context.Background(), debianRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrContractViolation)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropic_NoTextBlock(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "test-key")
	srv := anthropicServer(t, http.StatusOK, map[string]any{"content": []any{}}, nil)

	a := NewAnthropic(AnthropicOptions{BaseURL: srv.URL, APIKeyEnv: "TEST_ANTHROPIC_KEY"}, nil)
	_, err := a.Suggest(context.Background(), debianRequest())
	require.ErrorIs(t, err, domain.ErrContractViolation)
}

func TestAnthropic_MissingKey(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "")
	a := NewAnthropic(AnthropicOptions{BaseURL: "http://127.0.0.1:1", APIKeyEnv: "TEST_ANTHROPIC_KEY"}, nil)

	_, err := a.Suggest(context.Background(), debianRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_ANTHROPIC_KEY")
}
