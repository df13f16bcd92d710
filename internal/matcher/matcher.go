// Package matcher asks a scoring oracle which bot should back a VM and
// rejects any answer that does not name one of the offered candidates.
//
// The matcher never touches the entity store: a suggestion is advice, and
// applying it is a separate SetBot by the caller.
package matcher

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/metrics"
)

const opSuggest = "suggestBot"

// DefaultTimeout bounds a single oracle call
const DefaultTimeout = 60 * time.Second

// Suggestion is a validated oracle answer
type Suggestion struct {
	VMName string `json:"vmName"`
	BotID  string `json:"suggestedBotId"`
	Reason string `json:"reason"`
}

// Matcher validates oracle suggestions
type Matcher struct {
	oracle  Oracle
	timeout time.Duration
	metrics *metrics.Metrics
	log     *log.Entry
}

// Option configures a Matcher
type Option func(*Matcher)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithMetrics records suggestion outcomes on mt
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Matcher) { m.metrics = mt }
}

// New creates a Matcher consulting oracle
func New(oracle Oracle, opts ...Option) *Matcher {
	m := &Matcher{
		oracle:  oracle,
		timeout: DefaultTimeout,
		log:     log.WithField("component", "matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SuggestBot asks the oracle to pick one of candidates for the given profile.
// The answer is returned only if it names a candidate and gives a reason;
// otherwise the call fails with ErrContractViolation. Oracle failures and
// timeouts fail with ErrOracleUnavailable. Nothing is retried.
func (m *Matcher) SuggestBot(ctx context.Context, profile Profile, candidates []string, current *string) (*Suggestion, error) {
	candidates = dedupe(candidates)
	if len(candidates) == 0 {
		m.metrics.Suggestion(metrics.OutcomeInvalid)
		return nil, domain.Invalid(opSuggest, "candidateBotIds", "at least one candidate bot is required")
	}
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			m.metrics.Suggestion(metrics.OutcomeInvalid)
			return nil, domain.Invalid(opSuggest, "candidateBotIds", "candidate bot ids must be non-empty")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	logger := m.log.WithFields(log.Fields{
		"vm":         profile.subject(),
		"candidates": len(candidates),
	})

	start := time.Now()
	resp, err := m.oracle.Suggest(ctx, profile.request(candidates, current))
	m.metrics.OracleCall(time.Since(start))

	if err != nil {
		if errors.Is(err, domain.ErrContractViolation) {
			m.metrics.Suggestion(metrics.OutcomeContractViolation)
			logger.WithError(err).Warn("oracle returned malformed answer")
			return nil, &domain.Error{Op: opSuggest, Kind: domain.ErrContractViolation, ID: profile.subject(), Err: err}
		}
		m.metrics.Suggestion(metrics.OutcomeUnavailable)
		logger.WithError(err).Warn("oracle call failed")
		return nil, &domain.Error{Op: opSuggest, Kind: domain.ErrOracleUnavailable, ID: profile.subject(), Err: err}
	}

	if err := validate(resp, candidates); err != nil {
		m.metrics.Suggestion(metrics.OutcomeContractViolation)
		logger.WithError(err).Warn("rejected oracle answer")
		return nil, err
	}

	m.metrics.Suggestion(metrics.OutcomeOK)
	logger.WithField("bot_id", resp.SuggestedBotID).Debug("suggestion accepted")
	return &Suggestion{
		VMName: profile.Name,
		BotID:  resp.SuggestedBotID,
		Reason: resp.Reason,
	}, nil
}

// SuggestFor offers every catalog bot as a candidate for vm
func (m *Matcher) SuggestFor(ctx context.Context, vm *domain.VM, bots []domain.Bot) (*Suggestion, error) {
	candidates := make([]string, len(bots))
	for i, b := range bots {
		candidates[i] = b.ID
	}
	return m.SuggestBot(ctx, ProfileOf(vm), candidates, vm.BotID)
}

func validate(resp *Response, candidates []string) error {
	if resp == nil {
		return &domain.Error{Op: opSuggest, Kind: domain.ErrContractViolation, Msg: "oracle returned no answer"}
	}
	found := false
	for _, c := range candidates {
		if c == resp.SuggestedBotID {
			found = true
			break
		}
	}
	if !found {
		return &domain.Error{
			Op:    opSuggest,
			Kind:  domain.ErrContractViolation,
			ID:    resp.SuggestedBotID,
			Field: "suggestedBotId",
			Msg:   "not among the candidate bots",
		}
	}
	if strings.TrimSpace(resp.Reason) == "" {
		return &domain.Error{Op: opSuggest, Kind: domain.ErrContractViolation, Field: "reason", Msg: "empty reason"}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
