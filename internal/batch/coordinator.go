// Package batch edits the VMs of one process group together: bots are
// staged per VM and written to the store in a single atomic commit.
package batch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/metrics"
	"github.com/hochfrequenz/vm-sentinel/internal/notify"
	"github.com/hochfrequenz/vm-sentinel/internal/vmstore"
)

// Store is the part of the entity store the coordinator needs
type Store interface {
	ListVMs(opts vmstore.ListOptions) ([]*domain.VM, error)
	GetVM(id string) (*domain.VM, error)
	CreateVM(spec domain.VMSpec) (*domain.VM, error)
	DeleteVM(id string) error
	ApplyBotAssignments(processID string, assignments map[string]*string) (int, error)
}

// Coordinator opens, stages and commits process batches. It remembers every
// open staging set so deletions can be reflected in them.
type Coordinator struct {
	store    Store
	metrics  *metrics.Metrics
	notifier notify.Notifier
	log      *log.Entry

	mu   sync.Mutex
	open map[string]map[*StagingSet]struct{}
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithMetrics records commits on mt
func WithMetrics(mt *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = mt }
}

// WithNotifier announces commits through n
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// NewCoordinator creates a coordinator over store
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		notifier: notify.NoopNotifier{},
		log:      log.WithField("component", "batch"),
		open:     make(map[string]map[*StagingSet]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func emptyKey(op string) error {
	return &domain.Error{Op: op, Kind: domain.ErrEmptyKey, Field: "processId", Msg: "process id is required"}
}

func notInBatch(op, processID, vmID string) error {
	return &domain.Error{Op: op, Kind: domain.ErrNotInBatch, ID: vmID, Msg: "not part of process " + processID}
}

// OpenBatch seeds a staging set with the current bot of every VM in
// processID. A process without VMs yields an empty set.
func (c *Coordinator) OpenBatch(processID string) (*StagingSet, error) {
	const op = "openBatch"
	if strings.TrimSpace(processID) == "" {
		return nil, emptyKey(op)
	}

	vms, err := c.store.ListVMs(vmstore.ListOptions{ProcessID: processID})
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	set := newStagingSet(processID, vms)
	c.mu.Lock()
	if c.open[processID] == nil {
		c.open[processID] = make(map[*StagingSet]struct{})
	}
	c.open[processID][set] = struct{}{}
	c.mu.Unlock()

	c.log.WithFields(log.Fields{"process_id": processID, "vms": set.Len()}).Debug("batch opened")
	return set, nil
}

// Stage proposes botID (nil to unassign) for vmID. The store is not touched.
func (c *Coordinator) Stage(set *StagingSet, vmID string, botID *string) error {
	const op = "stage"
	if err := domain.ValidateBotRef(op, botID); err != nil {
		return err
	}
	if !set.stage(vmID, botID) {
		return notInBatch(op, set.ProcessID(), vmID)
	}
	return nil
}

// Commit writes every restaged bot in one transaction and returns how many
// VMs were updated. Members that were never restaged keep their stored bot.
// Committing again without restaging applies the same values again. Only a
// commit that wrote something sends a notification.
func (c *Coordinator) Commit(set *StagingSet) (int, error) {
	changes := set.changes()

	applied := 0
	if len(changes) > 0 {
		n, err := c.store.ApplyBotAssignments(set.ProcessID(), changes)
		if err != nil {
			return 0, err
		}
		applied = n
	}

	c.metrics.BatchCommit(applied)
	if applied == 0 {
		return 0, nil
	}
	c.send(notify.Notification{
		Title:     "Batch committed",
		Message:   fmt.Sprintf("%d VM(s) updated in %s", applied, set.ProcessID()),
		Type:      notify.NotifySuccess,
		ProcessID: set.ProcessID(),
	})
	return applied, nil
}

// Discard drops the set; later stages fail and commits apply nothing
func (c *Coordinator) Discard(set *StagingSet) {
	c.mu.Lock()
	if sets := c.open[set.ProcessID()]; sets != nil {
		delete(sets, set)
		if len(sets) == 0 {
			delete(c.open, set.ProcessID())
		}
	}
	c.mu.Unlock()
	set.discard()
}

// AddToBatch creates a VM tagged with processID. Open staging sets are not
// extended; reopen the batch to stage the new VM.
func (c *Coordinator) AddToBatch(processID string, spec domain.VMSpec) (*domain.VM, error) {
	const op = "addToBatch"
	if strings.TrimSpace(processID) == "" {
		return nil, emptyKey(op)
	}
	spec.ProcessID = processID
	if err := spec.Validate(op); err != nil {
		return nil, err
	}
	return c.store.CreateVM(spec)
}

// RemoveFromBatch deletes vmID, which must belong to processID, and drops it
// from the open staging sets of that process.
func (c *Coordinator) RemoveFromBatch(processID, vmID string) error {
	const op = "removeFromBatch"
	if strings.TrimSpace(processID) == "" {
		return emptyKey(op)
	}
	vm, err := c.store.GetVM(vmID)
	if err != nil {
		return err
	}
	if vm.ProcessID != processID {
		return notInBatch(op, processID, vmID)
	}
	if err := c.store.DeleteVM(vmID); err != nil {
		return err
	}
	c.forget(processID, vmID)
	return nil
}

// DeleteVM deletes vmID through the ordinary edit path and drops it from
// any open staging set.
func (c *Coordinator) DeleteVM(vmID string) error {
	vm, err := c.store.GetVM(vmID)
	if err != nil {
		return err
	}
	if err := c.store.DeleteVM(vmID); err != nil {
		return err
	}
	c.forget(vm.ProcessID, vmID)
	return nil
}

// OpenSets is the number of staging sets not yet discarded
func (c *Coordinator) OpenSets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, sets := range c.open {
		n += len(sets)
	}
	return n
}

func (c *Coordinator) forget(processID, vmID string) {
	c.mu.Lock()
	sets := make([]*StagingSet, 0, len(c.open[processID]))
	for s := range c.open[processID] {
		sets = append(sets, s)
	}
	c.mu.Unlock()

	for _, s := range sets {
		s.drop(vmID)
	}
}

func (c *Coordinator) send(n notify.Notification) {
	if err := c.notifier.Send(n); err != nil {
		c.log.WithError(err).Warn("notification failed")
	}
}
