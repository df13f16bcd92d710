package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
	"github.com/hochfrequenz/vm-sentinel/internal/prompts"
)

const anthropicVersion = "2023-06-01"

// AnthropicOptions configures the Messages API oracle
type AnthropicOptions struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	MaxTokens int
	Client    *http.Client
}

// Anthropic asks the Anthropic Messages API directly
type Anthropic struct {
	opts    AnthropicOptions
	prompts *prompts.Loader
	log     *log.Entry
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewAnthropic creates a Messages API oracle
func NewAnthropic(opts AnthropicOptions, loader *prompts.Loader) *Anthropic {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anthropic.com"
	}
	if opts.APIKeyEnv == "" {
		opts.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Anthropic{
		opts:    opts,
		prompts: loader,
		log:     log.WithFields(log.Fields{"component": "oracle", "provider": "anthropic"}),
	}
}

// Suggest implements matcher.Oracle
func (a *Anthropic) Suggest(ctx context.Context, req matcher.Request) (*matcher.Response, error) {
	key := os.Getenv(a.opts.APIKeyEnv)
	if key == "" {
		return nil, errors.Errorf("anthropic: %s is not set", a.opts.APIKeyEnv)
	}

	prompt, err := buildPrompt(a.prompts, req)
	if err != nil {
		return nil, errors.Wrap(err, "render prompt")
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: encode request")
	}

	endpoint := strings.TrimRight(a.opts.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	a.log.WithField("vm", req.Name).Debug("calling messages api")
	resp, err := a.opts.Client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("anthropic: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, malformed("undecodable messages api response: " + err.Error())
	}
	for _, block := range decoded.Content {
		if block.Type == "text" {
			return extractResponse(block.Text)
		}
	}
	return nil, malformed("messages api response has no text block")
}
