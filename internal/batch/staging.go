package batch

import (
	"sync"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
)

// StagingSet holds proposed bots for the VMs of one process group. It is
// working state only; nothing reaches the store until Commit.
type StagingSet struct {
	processID string

	mu       sync.Mutex
	order    []string
	proposed map[string]*string
	restaged map[string]bool
}

func newStagingSet(processID string, vms []*domain.VM) *StagingSet {
	s := &StagingSet{
		processID: processID,
		order:     make([]string, 0, len(vms)),
		proposed:  make(map[string]*string, len(vms)),
		restaged:  make(map[string]bool),
	}
	for _, vm := range vms {
		s.order = append(s.order, vm.ID)
		s.proposed[vm.ID] = copyRef(vm.BotID)
	}
	return s
}

// ProcessID is the process group the set was opened for
func (s *StagingSet) ProcessID() string { return s.processID }

// Len is the number of VMs in the set
func (s *StagingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// VMIDs lists the members in store order
func (s *StagingSet) VMIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Proposed returns the staged bot for vmID. ok is false for non-members.
func (s *StagingSet) Proposed(vmID string) (botID *string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.proposed[vmID]
	return copyRef(ref), ok
}

// Pending is the number of members restaged since the set was opened
func (s *StagingSet) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.restaged)
}

func (s *StagingSet) stage(vmID string, botID *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposed[vmID]; !ok {
		return false
	}
	s.proposed[vmID] = copyRef(botID)
	s.restaged[vmID] = true
	return true
}

// changes snapshots the restaged entries
func (s *StagingSet) changes() map[string]*string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*string, len(s.restaged))
	for id := range s.restaged {
		out[id] = copyRef(s.proposed[id])
	}
	return out
}

func (s *StagingSet) drop(vmID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposed[vmID]; !ok {
		return
	}
	delete(s.proposed, vmID)
	delete(s.restaged, vmID)
	for i, id := range s.order {
		if id == vmID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *StagingSet) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.proposed = map[string]*string{}
	s.restaged = map[string]bool{}
}

func copyRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	v := *ref
	return &v
}
