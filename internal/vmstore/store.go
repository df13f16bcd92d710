// Package vmstore is the authoritative in-memory collection of VMs and the
// read-only bot catalog. It is backed by a private SQLite database opened on
// ":memory:", so nothing outlives the process.
package vmstore

import (
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
)

const memoryDSN = ":memory:"

const vmColumns = `id, name, process_id, bot_id, status, cpu_cores, memory_gb, storage_gb, network_bandwidth_mbps`

// Store provides serialized access to VMs and bots. Every mutation holds the
// write lock for its whole duration, so no reader ever sees a VM whose status
// disagrees with its bot, nor a half-applied batch.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *log.Entry
}

// New creates an empty Store
func New() (*Store, error) {
	db, err := sql.Open("sqlite", memoryDSN)
	if err != nil {
		return nil, err
	}

	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}

	return &Store{
		db:  db,
		log: log.WithField("component", "vmstore"),
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ListOptions specifies filters for listing VMs
type ListOptions struct {
	ProcessID string
	Status    domain.VMStatus
	BotID     string
}

// ListVMs returns VMs matching opts in insertion order
func (s *Store) ListVMs(opts ListOptions) ([]*domain.VM, error) {
	query := `SELECT ` + vmColumns + ` FROM vms WHERE 1=1`
	var args []interface{}

	if opts.ProcessID != "" {
		query += " AND process_id = ?"
		args = append(args, opts.ProcessID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.BotID != "" {
		query += " AND bot_id = ?"
		args = append(args, opts.BotID)
	}
	query += " ORDER BY seq"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query vms")
	}
	defer rows.Close()

	var vms []*domain.VM
	for rows.Next() {
		vm, err := scanVM(rows)
		if err != nil {
			return nil, err
		}
		vms = append(vms, vm)
	}
	return vms, rows.Err()
}

// GetVM retrieves a VM by ID
func (s *Store) GetVM(id string) (*domain.VM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getVM(s.db, "getVM", id)
}

// CreateVM validates spec and stores a new VM under a fresh ID
func (s *Store) CreateVM(spec domain.VMSpec) (*domain.VM, error) {
	const op = "createVM"
	if err := spec.Validate(op); err != nil {
		return nil, err
	}

	vm := domain.NewVM("vm-"+uuid.NewString(), spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertVM(vm); err != nil {
		return nil, errors.Wrap(err, op)
	}
	s.log.WithFields(log.Fields{
		"vm_id":      vm.ID,
		"process_id": vm.ProcessID,
		"bot_id":     domain.RefString(vm.BotID),
	}).Info("vm created")
	return vm, nil
}

// InsertVM stores vm under its own ID. It is used to load fixtures whose IDs
// are already known.
func (s *Store) InsertVM(vm *domain.VM) error {
	const op = "insertVM"
	if strings.TrimSpace(vm.ID) == "" {
		return domain.Invalid(op, "id", "id is required")
	}
	spec := vm.Spec()
	if err := spec.Validate(op); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertVM(domain.NewVM(vm.ID, spec)); err != nil {
		return errors.Wrapf(err, "%s %s", op, vm.ID)
	}
	return nil
}

// UpdateVM replaces the editable fields of a VM. Status follows the bot
// reference in spec.
func (s *Store) UpdateVM(id string, spec domain.VMSpec) (*domain.VM, error) {
	const op = "updateVM"
	if err := spec.Validate(op); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vm, err := s.getVM(s.db, op, id)
	if err != nil {
		return nil, err
	}
	vm.Name = spec.Name
	vm.ProcessID = spec.ProcessID
	vm.Resources = spec.Resources
	tr := vm.SetBot(spec.BotID)

	if _, err := s.db.Exec(`
		UPDATE vms SET name = ?, process_id = ?, bot_id = ?, status = ?,
			cpu_cores = ?, memory_gb = ?, storage_gb = ?, network_bandwidth_mbps = ?
		WHERE id = ?
	`,
		vm.Name, vm.ProcessID, nullRef(vm.BotID), string(vm.Status),
		vm.CPUCores, vm.MemoryGB, vm.StorageGB, vm.NetworkBandwidthMbps,
		vm.ID,
	); err != nil {
		return nil, errors.Wrapf(err, "%s %s", op, id)
	}

	s.logTransition(vm.ID, tr).Info("vm updated")
	return vm, nil
}

// DeleteVM removes a VM permanently
func (s *Store) DeleteVM(id string) error {
	const op = "deleteVM"
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM vms WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "%s %s", op, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "%s %s", op, id)
	}
	if n == 0 {
		return domain.NotFound(op, id)
	}
	s.log.WithField("vm_id", id).Info("vm deleted")
	return nil
}

// SetBot is the single assignment primitive: it points the VM at botID (nil
// frees it) and re-derives its status. Only the one VM row is touched.
func (s *Store) SetBot(vmID string, botID *string) (*domain.VM, error) {
	const op = "setBot"
	if err := domain.ValidateBotRef(op, botID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vm, err := s.getVM(s.db, op, vmID)
	if err != nil {
		return nil, err
	}
	tr := vm.SetBot(botID)
	if err := updateBot(s.db, vm); err != nil {
		return nil, errors.Wrapf(err, "%s %s", op, vmID)
	}

	s.logTransition(vmID, tr).Debug("bot set")
	return vm, nil
}

// ApplyBotAssignments sets the bot of every listed VM that still exists and
// still belongs to processID, in one transaction. It returns how many VMs
// were written; entries for VMs that are gone or moved are skipped.
func (s *Store) ApplyBotAssignments(processID string, assignments map[string]*string) (int, error) {
	const op = "commit"
	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, errors.Wrap(err, op)
	}
	defer tx.Rollback()

	type applied struct {
		id string
		tr domain.Transition
	}
	var done []applied

	for _, id := range ids {
		vm, err := s.getVM(tx, op, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if vm.ProcessID != processID {
			continue
		}
		tr := vm.SetBot(assignments[id])
		if err := updateBot(tx, vm); err != nil {
			return 0, errors.Wrapf(err, "%s %s", op, id)
		}
		done = append(done, applied{id: id, tr: tr})
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, op)
	}

	for _, a := range done {
		s.logTransition(a.id, a.tr).Debug("bot set by batch")
	}
	s.log.WithFields(log.Fields{
		"process_id": processID,
		"applied":    len(done),
		"staged":     len(assignments),
	}).Info("batch committed")
	return len(done), nil
}

// ProcessIDs returns the distinct process IDs in order of first appearance
func (s *Store) ProcessIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT process_id FROM vms GROUP BY process_id ORDER BY MIN(seq)`)
	if err != nil {
		return nil, errors.Wrap(err, "query process ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertBot adds a bot to the catalog or renames it
func (s *Store) UpsertBot(bot domain.Bot) error {
	const op = "upsertBot"
	if strings.TrimSpace(bot.ID) == "" {
		return domain.Invalid(op, "id", "bot id is required")
	}
	if strings.TrimSpace(bot.Name) == "" {
		return domain.Invalid(op, "name", "bot name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO bots (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, bot.ID, bot.Name)
	return errors.Wrapf(err, "%s %s", op, bot.ID)
}

// ListBots returns the bot catalog in insertion order
func (s *Store) ListBots() ([]domain.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name FROM bots ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "query bots")
	}
	defer rows.Close()

	var bots []domain.Bot
	for rows.Next() {
		var b domain.Bot
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// GetBot retrieves a bot by ID
func (s *Store) GetBot(id string) (*domain.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b domain.Bot
	err := s.db.QueryRow(`SELECT id, name FROM bots WHERE id = ?`, id).Scan(&b.ID, &b.Name)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("getBot", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getBot %s", id)
	}
	return &b, nil
}

// BotLoad returns how many VMs reference each bot. Bots backing no VM are
// absent from the map.
func (s *Store) BotLoad() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT bot_id, COUNT(*) FROM vms WHERE bot_id IS NOT NULL GROUP BY bot_id`)
	if err != nil {
		return nil, errors.Wrap(err, "query bot load")
	}
	defer rows.Close()

	load := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		load[id] = n
	}
	return load, rows.Err()
}

func (s *Store) logTransition(vmID string, tr domain.Transition) *log.Entry {
	return s.log.WithFields(log.Fields{
		"vm_id":      vmID,
		"transition": tr.Kind(),
		"from_bot":   domain.RefString(tr.FromBot),
		"bot_id":     domain.RefString(tr.ToBot),
		"status":     tr.To,
	})
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) getVM(q querier, op, id string) (*domain.VM, error) {
	row := q.QueryRow(`SELECT `+vmColumns+` FROM vms WHERE id = ?`, id)
	vm, err := scanVM(row)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound(op, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", op, id)
	}
	return vm, nil
}

func (s *Store) insertVM(vm *domain.VM) error {
	_, err := s.db.Exec(`
		INSERT INTO vms (`+vmColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		vm.ID, vm.Name, vm.ProcessID, nullRef(vm.BotID), string(vm.Status),
		vm.CPUCores, vm.MemoryGB, vm.StorageGB, vm.NetworkBandwidthMbps,
	)
	return err
}

func updateBot(q querier, vm *domain.VM) error {
	_, err := q.Exec(`UPDATE vms SET bot_id = ?, status = ? WHERE id = ?`,
		nullRef(vm.BotID), string(vm.Status), vm.ID)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVM(row scanner) (*domain.VM, error) {
	var vm domain.VM
	var status string
	var botID sql.NullString

	err := row.Scan(&vm.ID, &vm.Name, &vm.ProcessID, &botID, &status,
		&vm.CPUCores, &vm.MemoryGB, &vm.StorageGB, &vm.NetworkBandwidthMbps)
	if err != nil {
		return nil, err
	}

	vm.Status = domain.VMStatus(status)
	if botID.Valid {
		vm.BotID = domain.BotRef(botID.String)
	}
	return &vm, nil
}

func nullRef(ref *string) sql.NullString {
	if ref == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *ref, Valid: true}
}
