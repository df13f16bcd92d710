package oracle

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
	"github.com/hochfrequenz/vm-sentinel/internal/prompts"
)

// Claude asks the claude CLI in print mode
type Claude struct {
	Command string // defaults to "claude"
	Model   string // optional --model
	Dir     string // working directory, optional

	prompts *prompts.Loader
	log     *log.Entry
}

// NewClaude creates a CLI oracle rendering prompts with loader
func NewClaude(command string, loader *prompts.Loader) *Claude {
	if command == "" {
		command = "claude"
	}
	return &Claude{
		Command: command,
		prompts: loader,
		log:     log.WithFields(log.Fields{"component": "oracle", "provider": "claude"}),
	}
}

// Suggest implements matcher.Oracle
func (c *Claude) Suggest(ctx context.Context, req matcher.Request) (*matcher.Response, error) {
	prompt, err := buildPrompt(c.prompts, req)
	if err != nil {
		return nil, errors.Wrap(err, "render prompt")
	}

	cmd := exec.CommandContext(ctx, c.Command, c.args(prompt)...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.log.WithField("vm", req.Name).Debug("invoking claude")
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "claude cli")
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrapf(err, "claude cli: %s", msg)
		}
		return nil, errors.Wrap(err, "claude cli")
	}

	return extractResponse(string(output))
}

func (c *Claude) args(prompt string) []string {
	args := []string{"--print", "--output-format", "text"}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	return append(args, "-p", prompt)
}
