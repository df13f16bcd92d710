package domain

import (
	"fmt"
	"strings"
)

// VMStatus represents the assignment state of a VM
type VMStatus string

const (
	StatusFree     VMStatus = "Free"
	StatusAssigned VMStatus = "Assigned"
)

// ParseStatus parses "Free" or "Assigned", case-insensitively
func ParseStatus(s string) (VMStatus, error) {
	switch {
	case strings.EqualFold(s, string(StatusFree)):
		return StatusFree, nil
	case strings.EqualFold(s, string(StatusAssigned)):
		return StatusAssigned, nil
	}
	return "", fmt.Errorf("invalid vm status %q (expected Free or Assigned)", s)
}

// Resources are the four sizing descriptors of a VM
type Resources struct {
	CPUCores             int `json:"cpuCores" yaml:"cpuCores"`
	MemoryGB             int `json:"memoryGB" yaml:"memoryGB"`
	StorageGB            int `json:"storageGB" yaml:"storageGB"`
	NetworkBandwidthMbps int `json:"networkBandwidthMbps" yaml:"networkBandwidthMbps"`
}

// VM is a virtual machine record tracked by the store
type VM struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ProcessID string   `json:"processId"`
	BotID     *string  `json:"botId"`
	Status    VMStatus `json:"status"`
	Resources
}

// Clone returns a deep copy; the bot reference is not shared.
func (vm *VM) Clone() *VM {
	c := *vm
	c.BotID = cloneRef(vm.BotID)
	return &c
}

// IsAssigned reports whether a bot backs this VM
func (vm *VM) IsAssigned() bool {
	return vm.BotID != nil
}

// Bot is a worker from the read-only candidate catalog
type Bot struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// BotRef returns a bot reference for id. The empty string is a real (if
// invalid) id here; "no bot" is always a nil reference.
func BotRef(id string) *string {
	return &id
}

// RefString renders a bot reference for logs and tables
func RefString(ref *string) string {
	if ref == nil {
		return "-"
	}
	return *ref
}

// SameRef reports whether two bot references point at the same bot
func SameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	v := *ref
	return &v
}
