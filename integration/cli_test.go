//go:build integration

package integration

import (
	"os/exec"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath := createTestConfig(t, CopySeedToTemp(t), 8080)
	cmd := exec.Command(binaryPath(t), append([]string{"--config", configPath}, args...)...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// TestCLI_Status tests the status command against the fixture inventory
func TestCLI_Status(t *testing.T) {
	out, err := runCLI(t, "status")
	if err != nil {
		t.Fatalf("status command failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "3 total | 2 free | 1 assigned") {
		t.Errorf("Expected totals in output, got: %s", out)
	}
	if !strings.Contains(out, "Bots: 3 | Processes: 2") {
		t.Errorf("Expected catalog counts in output, got: %s", out)
	}
}

// TestCLI_List tests the list command
func TestCLI_List(t *testing.T) {
	out, err := runCLI(t, "list")
	if err != nil {
		t.Fatalf("list command failed: %v\n%s", err, out)
	}

	for _, id := range []string{"vm-101", "vm-102", "vm-201"} {
		if !strings.Contains(out, id) {
			t.Errorf("Expected %s in output, got: %s", id, out)
		}
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "STATUS") {
		t.Errorf("Expected header in output, got: %s", out)
	}
}

// TestCLI_ListWithFilters tests name and status filtering
func TestCLI_ListWithFilters(t *testing.T) {
	out, err := runCLI(t, "list", "--name", "build agent", "--status", "free")
	if err != nil {
		t.Fatalf("list command failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "vm-102") {
		t.Errorf("Expected vm-102 in output, got: %s", out)
	}
	if strings.Contains(out, "vm-101") || strings.Contains(out, "vm-201") {
		t.Errorf("Expected only vm-102, got: %s", out)
	}
}

// TestCLI_SuggestAll tests the local oracle through the binary
func TestCLI_SuggestAll(t *testing.T) {
	out, err := runCLI(t, "suggest", "--all")
	if err != nil {
		t.Fatalf("suggest command failed: %v\n%s", err, out)
	}

	// bot-002 is the first idle bot
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		if !strings.Contains(line, "bot-002") {
			t.Errorf("Expected bot-002 suggestion, got: %s", line)
		}
	}
}

// TestCLI_Batch tests staging and committing a process batch
func TestCLI_Batch(t *testing.T) {
	out, err := runCLI(t, "batch", "PID-20001", "--set", "vm-101=none", "--set", "vm-102=bot-003")
	if err != nil {
		t.Fatalf("batch command failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Applied 2 change(s) to PID-20001") {
		t.Errorf("Expected applied count, got: %s", out)
	}
	if !strings.Contains(out, "bot-003") {
		t.Errorf("Expected new bot in output, got: %s", out)
	}
}

// TestCLI_BatchForeignVM tests that a VM of another process is rejected
func TestCLI_BatchForeignVM(t *testing.T) {
	out, err := runCLI(t, "batch", "PID-20001", "--set", "vm-201=bot-001")
	if err == nil {
		t.Fatalf("Expected failure, got: %s", out)
	}
	if !strings.Contains(out, "vm-201") {
		t.Errorf("Expected the rejected VM in the error, got: %s", out)
	}
}

// TestCLI_InvalidCommand tests error handling for invalid commands
func TestCLI_InvalidCommand(t *testing.T) {
	cmd := exec.Command(binaryPath(t), "nonexistent-command")
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Error("Expected error for invalid command")
	}
	if !strings.Contains(string(out), "unknown command") {
		t.Errorf("Expected 'unknown command' in output, got: %s", out)
	}
}

// TestCLI_MissingSeed tests that a configured seed file must exist
func TestCLI_MissingSeed(t *testing.T) {
	configPath := createTestConfig(t, "/nonexistent/seed.yaml", 8080)
	cmd := exec.Command(binaryPath(t), "status", "--config", configPath)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("Expected failure, got: %s", out)
	}
	if !strings.Contains(string(out), "inventory") {
		t.Errorf("Expected inventory error, got: %s", out)
	}
}
