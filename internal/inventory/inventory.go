// Package inventory loads the bots and VMs a store starts with.
package inventory

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
)

//go:embed default.yaml
var defaultInventory []byte

// Inventory is a seed document
type Inventory struct {
	Bots []domain.Bot `yaml:"bots"`
	VMs  []VMEntry    `yaml:"vms"`
}

// VMEntry is one VM as written in a seed file. Status is never read; it
// follows from BotID.
type VMEntry struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	ProcessID string  `yaml:"processId"`
	BotID     *string `yaml:"botId"`

	domain.Resources `yaml:",inline"`
}

// CatalogStore holds the bot catalog
type CatalogStore interface {
	UpsertBot(bot domain.Bot) error
}

// Store is where an inventory is applied
type Store interface {
	CatalogStore
	InsertVM(vm *domain.VM) error
}

// Default returns the built-in inventory
func Default() (*Inventory, error) {
	return Parse(defaultInventory)
}

// Load reads path, or the built-in inventory when path is empty
func Load(path string) (*Inventory, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read inventory")
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "inventory %s", path)
	}
	return inv, nil
}

// Parse decodes a seed document, rejecting unknown keys
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil {
		return nil, errors.Wrap(err, "parse inventory")
	}
	return &inv, nil
}

// Apply upserts the bots, then inserts every VM. It stops at the first VM
// the store rejects, naming it.
func (inv *Inventory) Apply(store Store) error {
	if err := inv.ApplyCatalog(store); err != nil {
		return err
	}
	for i, e := range inv.VMs {
		if e.ID == "" {
			return errors.Wrapf(domain.Invalid("seed", "id", "vm id is required"), "vm #%d", i+1)
		}
		vm := domain.NewVM(e.ID, domain.VMSpec{
			Name:      e.Name,
			ProcessID: e.ProcessID,
			BotID:     e.BotID,
			Resources: e.Resources,
		})
		if err := store.InsertVM(vm); err != nil {
			return errors.Wrapf(err, "vm %s", e.ID)
		}
	}
	log.WithFields(log.Fields{
		"component": "inventory",
		"bots":      len(inv.Bots),
		"vms":       len(inv.VMs),
	}).Info("inventory loaded")
	return nil
}

// ApplyCatalog upserts the bots only. VMs already in a running store are
// live state and are left alone.
func (inv *Inventory) ApplyCatalog(store CatalogStore) error {
	for _, bot := range inv.Bots {
		if err := store.UpsertBot(bot); err != nil {
			return errors.Wrapf(err, "bot %s", bot.ID)
		}
	}
	return nil
}
