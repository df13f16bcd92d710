//go:build integration

package integration

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
)

// FixturesDir returns the path to the fixtures directory
func FixturesDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(filename), "fixtures")
}

// CopySeedToTemp copies the fixture inventory so tests can edit it
func CopySeedToTemp(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(FixturesDir(t), "seed.yaml"))
	if err != nil {
		t.Fatalf("Failed to read fixture: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(dst, data, 0644); err != nil {
		t.Fatalf("Failed to copy fixture: %v", err)
	}
	return dst
}

// createTestConfig writes a config using the local oracle and seedPath
func createTestConfig(t *testing.T, seedPath string, port int) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.toml")

	config := `[general]
seed_path = "` + filepath.ToSlash(seedPath) + `"

[oracle]
provider = "local"
timeout_seconds = 10

[notifications]
desktop = false

[web]
port = ` + strconv.Itoa(port) + `
host = "127.0.0.1"

[log]
level = "warn"
`

	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

// binaryPath returns the path to the built CLI binary
func binaryPath(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("VM_SENTINEL_BIN"); p != "" {
		return p
	}

	abs, err := filepath.Abs("../vm-sentinel")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(abs); err == nil {
		return abs
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", abs, "../cmd/vm-sentinel")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}
	return abs
}

// freePort asks the kernel for an unused TCP port
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
