package matcher

import (
	"context"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
)

// Request is what the scoring oracle sees about one VM
type Request struct {
	Name                 string   `json:"vmName"`
	CPUCores             int      `json:"cpuCores"`
	MemoryGB             int      `json:"memoryGB"`
	StorageGB            int      `json:"storageGB"`
	NetworkBandwidthMbps int      `json:"networkBandwidthMbps"`
	CurrentBotID         *string  `json:"currentBotId,omitempty"`
	CandidateBotIDs      []string `json:"candidateBotIds"`
}

// Response is the oracle's answer. It is untrusted until validated.
type Response struct {
	SuggestedBotID string `json:"suggestedBotId"`
	Reason         string `json:"reason"`
}

// Oracle picks a bot for a VM and explains why
type Oracle interface {
	Suggest(ctx context.Context, req Request) (*Response, error)
}

// OracleFunc adapts a function to Oracle
type OracleFunc func(ctx context.Context, req Request) (*Response, error)

// Suggest calls f
func (f OracleFunc) Suggest(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Profile is the part of a VM the oracle reasons about
type Profile struct {
	VMID string
	Name string
	domain.Resources
}

// ProfileOf extracts the profile of vm
func ProfileOf(vm *domain.VM) Profile {
	return Profile{VMID: vm.ID, Name: vm.Name, Resources: vm.Resources}
}

// subject names the profile in errors and logs
func (p Profile) subject() string {
	if p.VMID != "" {
		return p.VMID
	}
	return p.Name
}

func (p Profile) request(candidates []string, current *string) Request {
	return Request{
		Name:                 p.Name,
		CPUCores:             p.CPUCores,
		MemoryGB:             p.MemoryGB,
		StorageGB:            p.StorageGB,
		NetworkBandwidthMbps: p.NetworkBandwidthMbps,
		CurrentBotID:         current,
		CandidateBotIDs:      candidates,
	}
}
