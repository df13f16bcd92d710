package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/metrics"
	"github.com/hochfrequenz/vm-sentinel/internal/vmstore"
)

var candidates = []string{"bot-001", "bot-002", "bot-003", "bot-004", "bot-005"}

func fixedOracle(botID, reason string) OracleFunc {
	return func(ctx context.Context, req Request) (*Response, error) {
		return &Response{SuggestedBotID: botID, Reason: reason}, nil
	}
}

func windowsVM() *domain.VM {
	return domain.NewVM("vm-002", domain.VMSpec{
		Name:      "Windows Server 2019",
		ProcessID: "PID-10567",
		Resources: domain.Resources{CPUCores: 2, MemoryGB: 4, StorageGB: 50, NetworkBandwidthMbps: 500},
	})
}

func TestSuggestBot_PassesRequestAndReason(t *testing.T) {
	var got Request
	m := New(OracleFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		return &Response{SuggestedBotID: "bot-003", Reason: "  best storage fit\n"}, nil
	}))

	vm := windowsVM()
	s, err := m.SuggestBot(context.Background(), ProfileOf(vm), candidates, domain.BotRef("bot-001"))
	require.NoError(t, err)

	assert.Equal(t, "bot-003", s.BotID)
	assert.Equal(t, "  best storage fit\n", s.Reason, "reason must be passed through verbatim")

	assert.Equal(t, "Windows Server 2019", got.Name)
	assert.Equal(t, 2, got.CPUCores)
	assert.Equal(t, 4, got.MemoryGB)
	assert.Equal(t, 50, got.StorageGB)
	assert.Equal(t, 500, got.NetworkBandwidthMbps)
	assert.Equal(t, "bot-001", *got.CurrentBotID)
	assert.Equal(t, candidates, got.CandidateBotIDs)
}

func TestSuggestBot_RejectsUnknownBot(t *testing.T) {
	m := New(fixedOracle("bot-999", "it is great"))

	_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
	require.ErrorIs(t, err, domain.ErrContractViolation)
	assert.Contains(t, err.Error(), "bot-999")
}

func TestSuggestBot_RejectsEmptyReason(t *testing.T) {
	for _, reason := range []string{"", "   ", "\n\t"} {
		m := New(fixedOracle("bot-002", reason))
		_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
		require.ErrorIs(t, err, domain.ErrContractViolation, "reason %q", reason)
	}
}

func TestSuggestBot_NilResponse(t *testing.T) {
	m := New(OracleFunc(func(context.Context, Request) (*Response, error) { return nil, nil }))
	_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
	require.ErrorIs(t, err, domain.ErrContractViolation)
}

func TestSuggestBot_OracleFailure(t *testing.T) {
	cause := errors.New("connection refused")
	m := New(OracleFunc(func(context.Context, Request) (*Response, error) { return nil, cause }))

	_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "vm-002")
}

func TestSuggestBot_MalformedOracleOutput(t *testing.T) {
	m := New(OracleFunc(func(context.Context, Request) (*Response, error) {
		return nil, &domain.Error{Op: "parse", Kind: domain.ErrContractViolation, Msg: "no JSON object"}
	}))

	_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
	require.ErrorIs(t, err, domain.ErrContractViolation)
	assert.NotErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestSuggestBot_Timeout(t *testing.T) {
	m := New(OracleFunc(func(ctx context.Context, req Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithTimeout(10*time.Millisecond))

	start := time.Now()
	_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSuggestBot_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(OracleFunc(func(ctx context.Context, req Request) (*Response, error) {
		return nil, ctx.Err()
	}))

	_, err := m.SuggestBot(ctx, ProfileOf(windowsVM()), candidates, nil)
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSuggestBot_CandidateValidation(t *testing.T) {
	called := false
	m := New(OracleFunc(func(context.Context, Request) (*Response, error) {
		called = true
		return &Response{SuggestedBotID: "bot-001", Reason: "x"}, nil
	}))

	_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()), nil, nil)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = m.SuggestBot(context.Background(), ProfileOf(windowsVM()), []string{"bot-001", ""}, nil)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, called, "oracle must not be consulted for an invalid request")
}

func TestSuggestBot_CollapsesDuplicateCandidates(t *testing.T) {
	var got Request
	m := New(OracleFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		return &Response{SuggestedBotID: "bot-002", Reason: "only choice"}, nil
	}))

	_, err := m.SuggestBot(context.Background(), ProfileOf(windowsVM()),
		[]string{"bot-002", "bot-001", "bot-002"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bot-002", "bot-001"}, got.CandidateBotIDs)
}

func TestSuggestBot_RecordsMetrics(t *testing.T) {
	mt := metrics.New()
	ok := New(fixedOracle("bot-001", "fine"), WithMetrics(mt))
	bad := New(fixedOracle("bot-x", "fine"), WithMetrics(mt))

	_, err := ok.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
	require.NoError(t, err)
	_, err = bad.SuggestBot(context.Background(), ProfileOf(windowsVM()), candidates, nil)
	require.Error(t, err)

	families, err := mt.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "vm_sentinel_matcher_suggestions_total")
}

func newSeededStore(t *testing.T) *vmstore.Store {
	t.Helper()
	store, err := vmstore.New()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for i, name := range []string{"ScraperBot-A", "AnalyzerBot-B", "ReporterBot-C"} {
		require.NoError(t, store.UpsertBot(domain.Bot{ID: candidates[i], Name: name}))
	}
	require.NoError(t, store.InsertVM(windowsVM()))
	return store
}

func TestSuggestFor_AcceptedSuggestionAppliedBySetBot(t *testing.T) {
	store := newSeededStore(t)
	m := New(fixedOracle("bot-003", "best storage fit"))

	vm, err := store.GetVM("vm-002")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFree, vm.Status)

	bots, err := store.ListBots()
	require.NoError(t, err)

	s, err := m.SuggestFor(context.Background(), vm, bots)
	require.NoError(t, err)
	assert.Equal(t, "bot-003", s.BotID)
	assert.Equal(t, "best storage fit", s.Reason)

	// suggesting changes nothing
	unchanged, err := store.GetVM("vm-002")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFree, unchanged.Status)

	applied, err := store.SetBot("vm-002", domain.BotRef(s.BotID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, applied.Status)
	assert.Equal(t, "bot-003", *applied.BotID)
}

func TestSuggestFor_ContractViolationLeavesVMUnchanged(t *testing.T) {
	store := newSeededStore(t)
	m := New(fixedOracle("bot-005", "not offered"))

	vm, err := store.GetVM("vm-002")
	require.NoError(t, err)
	bots, err := store.ListBots()
	require.NoError(t, err)

	_, err = m.SuggestFor(context.Background(), vm, bots)
	require.ErrorIs(t, err, domain.ErrContractViolation)

	after, err := store.GetVM("vm-002")
	require.NoError(t, err)
	assert.Equal(t, vm, after)
}
