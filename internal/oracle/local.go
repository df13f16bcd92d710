package oracle

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
)

// LoadSource reports how many VMs each bot currently backs
type LoadSource interface {
	BotLoad() (map[string]int, error)
}

// LeastLoaded is a deterministic oracle: it keeps the current bot when it
// is a candidate, otherwise it picks the candidate backing the fewest VMs.
// Ties go to the earlier candidate.
type LeastLoaded struct {
	loads LoadSource
}

// NewLeastLoaded creates a local oracle reading loads
func NewLeastLoaded(loads LoadSource) *LeastLoaded {
	return &LeastLoaded{loads: loads}
}

// Suggest implements matcher.Oracle
func (l *LeastLoaded) Suggest(ctx context.Context, req matcher.Request) (*matcher.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.CandidateBotIDs) == 0 {
		return nil, errors.New("no candidates")
	}

	if req.CurrentBotID != nil {
		for _, c := range req.CandidateBotIDs {
			if c == *req.CurrentBotID {
				return &matcher.Response{
					SuggestedBotID: c,
					Reason:         fmt.Sprintf("%s already serves %s; keeping the current assignment avoids a move", c, req.Name),
				}, nil
			}
		}
	}

	loads, err := l.loads.BotLoad()
	if err != nil {
		return nil, errors.Wrap(err, "read bot load")
	}

	best := req.CandidateBotIDs[0]
	for _, c := range req.CandidateBotIDs[1:] {
		if loads[c] < loads[best] {
			best = c
		}
	}
	return &matcher.Response{
		SuggestedBotID: best,
		Reason: fmt.Sprintf("%s backs the fewest VMs (%d) among %d candidates, leaving the most headroom for %s (%d cores, %d GB memory)",
			best, loads[best], len(req.CandidateBotIDs), req.Name, req.CPUCores, req.MemoryGB),
	}, nil
}
