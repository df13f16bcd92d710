package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
	"github.com/hochfrequenz/vm-sentinel/internal/view"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Bold(true)

	freeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	assignedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	sum := view.Summarize(view.Project(m.vms, "", view.All))
	header := fmt.Sprintf(" VM Sentinel │ VMs: %d │ Free: %d │ Assigned: %d │ Bots: %d ",
		sum.Total, sum.Free, sum.Assigned, len(m.bots))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var content string
	switch m.activeTab {
	case tabBots:
		content = m.renderBots()
	default:
		content = m.renderVMs()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(content))
	b.WriteString("\n")

	if m.pending != nil {
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderSuggestion()))
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"VMs", "Bots"}
	var parts []string

	for i, tab := range tabs {
		if i == m.activeTab {
			parts = append(parts, tabActiveStyle.Render(fmt.Sprintf(" %s ", tab)))
		} else {
			parts = append(parts, tabInactiveStyle.Render(fmt.Sprintf(" %s ", tab)))
		}
	}

	return strings.Join(parts, "│")
}

func (m Model) renderVMs() string {
	var b strings.Builder

	search := m.search
	if m.searching {
		search += "▏"
	}
	if search == "" {
		search = dimmedStyle.Render("(none, press /)")
	}
	fmt.Fprintf(&b, "Status: %s │ Name: %s\n\n", m.status, search)

	rows := m.visible()
	if len(rows) == 0 {
		b.WriteString(dimmedStyle.Render("No VMs match"))
		return b.String()
	}

	b.WriteString(columnStyle.Render(fmt.Sprintf("%-10s %-28s %-11s %-9s %-9s %s",
		"ID", "NAME", "PROCESS", "BOT", "STATUS", "CPU/MEM/DISK/NET")))
	b.WriteString("\n")

	for i, vm := range rows {
		line := fmt.Sprintf("%-10s %-28s %-11s %-9s %-9s %d/%dG/%dG/%dM",
			truncate(vm.ID, 10), truncate(vm.Name, 28), truncate(vm.ProcessID, 11),
			botLabel(vm.BotID), vm.Status,
			vm.CPUCores, vm.MemoryGB, vm.StorageGB, vm.NetworkBandwidthMbps)
		switch {
		case i == m.selectedRow:
			line = selectedStyle.Render("▸ " + line)
		case vm.Status == domain.StatusFree:
			line = "  " + freeStyle.Render(line)
		default:
			line = "  " + assignedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderBots() string {
	if len(m.bots) == 0 {
		return dimmedStyle.Render("No bots in the catalog")
	}

	var b strings.Builder
	b.WriteString(columnStyle.Render(fmt.Sprintf("%-10s %-20s %s", "ID", "NAME", "VMS")))
	b.WriteString("\n")
	for i, bot := range m.bots {
		line := fmt.Sprintf("%-10s %-20s %d", bot.ID, truncate(bot.Name, 20), m.load[bot.ID])
		if i == m.selectedRow {
			line = selectedStyle.Render("▸ " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderSuggestion() string {
	s := m.pending.suggestion
	var b strings.Builder
	fmt.Fprintf(&b, "Suggestion for %s (%s)\n", s.VMName, m.pending.vmID)
	fmt.Fprintf(&b, "Bot:    %s\n", s.BotID)
	fmt.Fprintf(&b, "Reason: %s", s.Reason)
	return b.String()
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.err != nil:
		left = errorStyle.Render(" " + m.err.Error())
	case m.message != "":
		left = " " + m.message
	case m.searching:
		left = " type to search │ enter: keep │ esc: clear"
	default:
		left = " j/k: move │ f: filter │ /: search │ s: suggest │ u: unassign │ tab: switch │ q: quit"
	}
	return statusBarStyle.Width(m.width).Render(left)
}

func botLabel(bot *string) string {
	if bot == nil {
		return "-"
	}
	return *bot
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
