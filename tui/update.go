package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/matcher"
	"github.com/hochfrequenz/vm-sentinel/internal/vmstore"
)

// LoadedMsg carries a fresh copy of the inventory
type LoadedMsg struct {
	VMs  []*domain.VM
	Bots []domain.Bot
	Load map[string]int
	Err  error
}

// SuggestionMsg is sent when the oracle answers
type SuggestionMsg struct {
	VMID       string
	Suggestion *matcher.Suggestion
	Err        error
}

// AssignedMsg is sent after a bot was set or cleared
type AssignedMsg struct {
	VM  *domain.VM
	Err error
}

// suggestTimeout bounds one oracle call from the dashboard; the matcher
// applies its own limit as well
const suggestTimeout = 2 * time.Minute

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(loadCmd(m.backend), tickCmd())

	case LoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.vms, m.bots, m.load = msg.VMs, msg.Bots, msg.Load
		m.lastRefresh = time.Now()
		m.clampSelection()

	case SuggestionMsg:
		m.busy = false
		if msg.Err != nil {
			m.err = msg.Err
			m.message = ""
			return m, nil
		}
		m.err = nil
		m.pending = &pendingSuggestion{vmID: msg.VMID, suggestion: msg.Suggestion}
		m.message = fmt.Sprintf("Suggested %s for %s. Press a to accept, esc to dismiss.", msg.Suggestion.BotID, msg.VMID)

	case AssignedMsg:
		m.busy = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		if msg.VM.IsAssigned() {
			m.message = fmt.Sprintf("%s assigned to %s", *msg.VM.BotID, msg.VM.ID)
		} else {
			m.message = fmt.Sprintf("%s is now free", msg.VM.ID)
		}
		return m, loadCmd(m.backend)
	}

	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, loadCmd(m.backend)
	case "j", "down":
		m.selectedRow++
		m.clampSelection()
	case "k", "up":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		m.selectedRow = 0
	case "f":
		m.status = nextFilter(m.status)
		m.selectedRow = 0
	case "/":
		m.searching = true
		m.activeTab = tabVMs
	case "esc":
		m.pending = nil
		m.message = ""
		m.err = nil
	case "s":
		vm := m.selected()
		if m.activeTab != tabVMs || vm == nil || m.busy || m.suggester == nil {
			return m, nil
		}
		m.busy = true
		m.pending = nil
		m.err = nil
		m.message = "Asking the oracle about " + vm.Name + "..."
		return m, suggestCmd(m.suggester, vm, m.bots)
	case "a":
		if m.pending == nil || m.busy {
			return m, nil
		}
		p := m.pending
		m.pending = nil
		m.busy = true
		return m, assignCmd(m.backend, p.vmID, domain.BotRef(p.suggestion.BotID))
	case "u":
		vm := m.selected()
		if m.activeTab != tabVMs || vm == nil || m.busy || !vm.IsAssigned() {
			return m, nil
		}
		m.busy = true
		return m, assignCmd(m.backend, vm.ID, nil)
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.search = ""
		m.searching = false
	case tea.KeyEnter:
		m.searching = false
	case tea.KeyBackspace:
		if r := []rune(m.search); len(r) > 0 {
			m.search = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.search += " "
	case tea.KeyRunes:
		m.search += string(msg.Runes)
	}
	m.selectedRow = 0
	return m, nil
}

func loadCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		vms, err := b.ListVMs(vmstore.ListOptions{})
		if err != nil {
			return LoadedMsg{Err: err}
		}
		bots, err := b.ListBots()
		if err != nil {
			return LoadedMsg{Err: err}
		}
		load, err := b.BotLoad()
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{VMs: vms, Bots: bots, Load: load}
	}
}

func suggestCmd(s Suggester, vm *domain.VM, bots []domain.Bot) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), suggestTimeout)
		defer cancel()
		suggestion, err := s.SuggestFor(ctx, vm, bots)
		return SuggestionMsg{VMID: vm.ID, Suggestion: suggestion, Err: err}
	}
}

func assignCmd(b Backend, vmID string, botID *string) tea.Cmd {
	return func() tea.Msg {
		vm, err := b.SetBot(vmID, botID)
		return AssignedMsg{VM: vm, Err: err}
	}
}
