package view

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/vm-sentinel/internal/domain"
)

func fixture() []*domain.VM {
	r := domain.Resources{CPUCores: 1, MemoryGB: 1, StorageGB: 1, NetworkBandwidthMbps: 1}
	mk := func(id, name string, bot *string) *domain.VM {
		return domain.NewVM(id, domain.VMSpec{Name: name, ProcessID: "PID-1", BotID: bot, Resources: r})
	}
	return []*domain.VM{
		mk("vm-001", "Ubuntu Server 22.04 LTS", domain.BotRef("bot-001")),
		mk("vm-002", "Windows Server 2019", nil),
		mk("vm-003", "CentOS Stream 9", domain.BotRef("bot-003")),
		mk("vm-004", "Debian 11 Bullseye", nil),
		mk("vm-005", "Fedora Server 38", nil),
	}
}

func ids(seq iter.Seq[*domain.VM]) []string {
	var out []string
	for vm := range seq {
		out = append(out, vm.ID)
	}
	return out
}

func TestProject_NoFilterIsIdentity(t *testing.T) {
	vms := fixture()
	got := slices.Collect(Project(vms, "", All))
	assert.Equal(t, vms, got)
}

func TestProject(t *testing.T) {
	tests := []struct {
		name   string
		needle string
		status StatusFilter
		want   []string
	}{
		{"substring any case", "SERVER", All, []string{"vm-001", "vm-002", "vm-005"}},
		{"substring and status", "server", Free, []string{"vm-002", "vm-005"}},
		{"status only", "", Assigned, []string{"vm-001", "vm-003"}},
		{"no match", "solaris", All, nil},
		{"no match with status", "centos", Free, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Project(fixture(), tt.needle, tt.status)))
		})
	}
}

func TestProject_EmptyInput(t *testing.T) {
	assert.Empty(t, ids(Project(nil, "x", Free)))
}

func TestProject_Restartable(t *testing.T) {
	seq := Project(fixture(), "server", All)
	first := ids(seq)
	second := ids(seq)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestProject_StopsEarly(t *testing.T) {
	n := 0
	for range Project(fixture(), "", All) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestProject_DoesNotMutate(t *testing.T) {
	vms := fixture()
	snapshot := make([]*domain.VM, len(vms))
	for i, vm := range vms {
		snapshot[i] = vm.Clone()
	}
	_ = ids(Project(vms, "debian", Free))
	assert.Equal(t, snapshot, vms)
}

func TestParseStatusFilter(t *testing.T) {
	tests := []struct {
		in   string
		want StatusFilter
	}{
		{"", All},
		{"all", All},
		{"ALL", All},
		{"free", Free},
		{"Assigned", Assigned},
	}
	for _, tt := range tests {
		got, err := ParseStatusFilter(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStatusFilter("busy")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSummarize(t *testing.T) {
	s := Summarize(Project(fixture(), "", All))
	assert.Equal(t, Summary{Total: 5, Free: 3, Assigned: 2}, s)
	assert.Equal(t, Summary{}, Summarize(Project(nil, "", All)))
}
