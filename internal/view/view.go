// Package view filters VM listings for display. Nothing here mutates or fails.
package view

import (
	"iter"
	"strings"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
)

// StatusFilter narrows a listing by status. The zero value matches everything.
type StatusFilter struct {
	status domain.VMStatus
}

var (
	All      = StatusFilter{}
	Free     = StatusFilter{status: domain.StatusFree}
	Assigned = StatusFilter{status: domain.StatusAssigned}
)

// Only filters on a single status
func Only(s domain.VMStatus) StatusFilter { return StatusFilter{status: s} }

// ParseStatusFilter accepts "", "all", or a status name, ignoring case
func ParseStatusFilter(s string) (StatusFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return All, nil
	}
	status, err := domain.ParseStatus(s)
	if err != nil {
		return All, domain.Invalid("project", "status", "want all, Free or Assigned, got "+s)
	}
	return Only(status), nil
}

// Match reports whether vm passes the filter
func (f StatusFilter) Match(vm *domain.VM) bool {
	return f.status == "" || vm.Status == f.status
}

func (f StatusFilter) String() string {
	if f.status == "" {
		return "all"
	}
	return string(f.status)
}

// Project yields the VMs whose name contains nameSubstring (case-insensitive)
// and whose status passes status, in input order. The sequence is lazy and
// can be ranged over any number of times.
func Project(vms []*domain.VM, nameSubstring string, status StatusFilter) iter.Seq[*domain.VM] {
	needle := strings.ToLower(nameSubstring)
	return func(yield func(*domain.VM) bool) {
		for _, vm := range vms {
			if vm == nil || !status.Match(vm) {
				continue
			}
			if needle != "" && !strings.Contains(strings.ToLower(vm.Name), needle) {
				continue
			}
			if !yield(vm) {
				return
			}
		}
	}
}

// Summary counts a listing by status
type Summary struct {
	Total    int `json:"total"`
	Free     int `json:"free"`
	Assigned int `json:"assigned"`
}

// Summarize consumes seq
func Summarize(seq iter.Seq[*domain.VM]) Summary {
	var s Summary
	for vm := range seq {
		s.Total++
		if vm.IsAssigned() {
			s.Assigned++
		} else {
			s.Free++
		}
	}
	return s
}
