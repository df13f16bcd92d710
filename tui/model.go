package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
	"github.com/hochfrequenz/vm-sentinel/internal/view"
	"github.com/hochfrequenz/vm-sentinel/internal/vmstore"
)

// Backend is the part of the entity store the dashboard reads and writes
type Backend interface {
	ListVMs(opts vmstore.ListOptions) ([]*domain.VM, error)
	ListBots() ([]domain.Bot, error)
	BotLoad() (map[string]int, error)
	SetBot(vmID string, botID *string) (*domain.VM, error)
}

// Suggester asks the oracle for a bot
type Suggester interface {
	SuggestFor(ctx context.Context, vm *domain.VM, bots []domain.Bot) (*matcher.Suggestion, error)
}

const (
	tabVMs = iota
	tabBots
	tabCount
)

// refreshInterval picks up changes made through the API while the
// dashboard is open
const refreshInterval = 2 * time.Second

// Model is the TUI application model
type Model struct {
	backend   Backend
	suggester Suggester

	// Data
	vms  []*domain.VM
	bots []domain.Bot
	load map[string]int

	// Filter
	status    view.StatusFilter
	search    string
	searching bool

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int

	// Suggestion flow
	busy    bool
	pending *pendingSuggestion
	message string
	err     error

	lastRefresh time.Time
}

type pendingSuggestion struct {
	vmID       string
	suggestion *matcher.Suggestion
}

// ModelConfig holds the collaborators of the dashboard
type ModelConfig struct {
	Backend   Backend
	Suggester Suggester
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	return Model{
		backend:   cfg.Backend,
		suggester: cfg.Suggester,
		status:    view.All,
		load:      map[string]int{},
	}
}

// Init loads the inventory and starts the refresh tick
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadCmd(m.backend),
		tickCmd(),
	)
}

// visible is the VM table after filter and search
func (m Model) visible() []*domain.VM {
	var out []*domain.VM
	for vm := range view.Project(m.vms, m.search, m.status) {
		out = append(out, vm)
	}
	return out
}

func (m Model) selected() *domain.VM {
	rows := m.visible()
	if m.selectedRow < 0 || m.selectedRow >= len(rows) {
		return nil
	}
	return rows[m.selectedRow]
}

func (m *Model) clampSelection() {
	n := len(m.visible())
	if m.activeTab == tabBots {
		n = len(m.bots)
	}
	if m.selectedRow >= n {
		m.selectedRow = n - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

// nextFilter cycles all, free, assigned
func nextFilter(f view.StatusFilter) view.StatusFilter {
	switch f {
	case view.All:
		return view.Free
	case view.Free:
		return view.Assigned
	default:
		return view.All
	}
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
