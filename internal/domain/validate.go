package domain

import "strings"

// VMSpec holds the caller-supplied fields of a VM; the store assigns the ID
// and derives the status.
type VMSpec struct {
	Name      string  `json:"name"`
	ProcessID string  `json:"processId"`
	BotID     *string `json:"botId"`
	Resources
}

// Validate checks every precondition of a stored VM and names the first
// failing field.
func (s VMSpec) Validate(op string) error {
	if strings.TrimSpace(s.Name) == "" {
		return Invalid(op, "name", "name is required")
	}
	if strings.TrimSpace(s.ProcessID) == "" {
		return Invalid(op, "processId", "process id is required")
	}
	if err := ValidateBotRef(op, s.BotID); err != nil {
		return err
	}
	return s.Resources.Validate(op)
}

// ValidateBotRef accepts nil (free) or a non-blank bot id
func ValidateBotRef(op string, botID *string) error {
	if botID != nil && strings.TrimSpace(*botID) == "" {
		return Invalid(op, "botId", "bot id must be non-empty or null")
	}
	return nil
}

// Validate checks that every resource field is at least 1
func (r Resources) Validate(op string) error {
	switch {
	case r.CPUCores < 1:
		return Invalid(op, "cpuCores", "CPU cores must be at least 1")
	case r.MemoryGB < 1:
		return Invalid(op, "memoryGB", "memory must be at least 1 GB")
	case r.StorageGB < 1:
		return Invalid(op, "storageGB", "storage must be at least 1 GB")
	case r.NetworkBandwidthMbps < 1:
		return Invalid(op, "networkBandwidthMbps", "network bandwidth must be at least 1 Mbps")
	}
	return nil
}

// Spec returns the editable fields of the VM
func (vm *VM) Spec() VMSpec {
	return VMSpec{
		Name:      vm.Name,
		ProcessID: vm.ProcessID,
		BotID:     cloneRef(vm.BotID),
		Resources: vm.Resources,
	}
}

// NewVM builds a VM from a validated spec
func NewVM(id string, s VMSpec) *VM {
	vm := &VM{
		ID:        id,
		Name:      s.Name,
		ProcessID: s.ProcessID,
		Resources: s.Resources,
	}
	vm.SetBot(s.BotID)
	return vm
}
