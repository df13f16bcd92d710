// Package oracle provides the scoring oracles a matcher can consult: the
// claude CLI, the Anthropic Messages API, and a deterministic local
// least-loaded picker.
package oracle

import (
	"github.com/pkg/errors"

	"github.com/hochfrequenz/vm-sentinel/internal/config"
	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
	"github.com/hochfrequenz/vm-sentinel/internal/prompts"
)

// New builds the oracle selected by cfg.Oracle.Provider. loads feeds the
// local provider and is ignored by the others.
func New(cfg *config.Config, loads LoadSource) (matcher.Oracle, error) {
	oc := cfg.Oracle
	switch oc.Provider {
	case config.ProviderLocal, "":
		if loads == nil {
			return nil, errors.New("local oracle needs a load source")
		}
		return NewLeastLoaded(loads), nil
	case config.ProviderClaude:
		c := NewClaude(oc.Command, loaderFor(cfg))
		c.Model = oc.Model
		c.Dir = cfg.General.ProjectRoot
		return c, nil
	case config.ProviderAnthropic:
		return NewAnthropic(AnthropicOptions{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			MaxTokens: oc.MaxTokens,
		}, loaderFor(cfg)), nil
	default:
		return nil, errors.Errorf("unknown oracle provider %q", oc.Provider)
	}
}

func loaderFor(cfg *config.Config) *prompts.Loader {
	if cfg.Oracle.PromptsDir != "" {
		return prompts.NewLoader(cfg.Oracle.PromptsDir)
	}
	return prompts.DefaultLoader(cfg.General.ProjectRoot)
}

func buildPrompt(loader *prompts.Loader, req matcher.Request) (string, error) {
	if loader == nil {
		loader = prompts.NewLoader()
	}
	current := "none"
	if req.CurrentBotID != nil {
		current = *req.CurrentBotID
	}
	return loader.BuildSuggestPrompt(prompts.SuggestData{
		VMName:               req.Name,
		CPUCores:             req.CPUCores,
		MemoryGB:             req.MemoryGB,
		StorageGB:            req.StorageGB,
		NetworkBandwidthMbps: req.NetworkBandwidthMbps,
		CurrentBotID:         current,
		CandidateBotIDs:      req.CandidateBotIDs,
	})
}

func malformed(msg string) error {
	return &domain.Error{Op: "parseOracleOutput", Kind: domain.ErrContractViolation, Msg: msg}
}
