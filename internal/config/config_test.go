package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Oracle.Provider != ProviderLocal {
		t.Errorf("Oracle.Provider = %q, want %q", cfg.Oracle.Provider, ProviderLocal)
	}
	if cfg.Oracle.TimeoutSeconds != 60 {
		t.Errorf("Oracle.TimeoutSeconds = %d, want 60", cfg.Oracle.TimeoutSeconds)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeTempConfig(t, `
[general]
project_root = "/test/project"
seed_path = "/test/inventory.yaml"

[oracle]
provider = "anthropic"
model = "claude-3-5-haiku-latest"
timeout_seconds = 15

[web]
port = 9000

[log]
level = "debug"
json = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.ProjectRoot != "/test/project" {
		t.Errorf("ProjectRoot = %q, want /test/project", cfg.General.ProjectRoot)
	}
	if cfg.General.SeedPath != "/test/inventory.yaml" {
		t.Errorf("SeedPath = %q, want /test/inventory.yaml", cfg.General.SeedPath)
	}
	if cfg.Oracle.Provider != ProviderAnthropic {
		t.Errorf("Provider = %q, want anthropic", cfg.Oracle.Provider)
	}
	if cfg.Oracle.TimeoutSeconds != 15 {
		t.Errorf("TimeoutSeconds = %d, want 15", cfg.Oracle.TimeoutSeconds)
	}
	if cfg.Oracle.APIKeyEnv != "ANTHROPIC_API_KEY" {
		t.Errorf("APIKeyEnv = %q, want default to survive partial section", cfg.Oracle.APIKeyEnv)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	if !cfg.Log.JSON || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
}

func TestLoad_ExpandsPaths(t *testing.T) {
	home, _ := os.UserHomeDir()
	path := writeTempConfig(t, `
[general]
seed_path = "~/vms.yaml"

[oracle]
prompts_dir = "~/prompts"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.SeedPath != filepath.Join(home, "vms.yaml") {
		t.Errorf("SeedPath = %q", cfg.General.SeedPath)
	}
	if cfg.Oracle.PromptsDir != filepath.Join(home, "prompts") {
		t.Errorf("PromptsDir = %q", cfg.Oracle.PromptsDir)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown provider", "[oracle]\nprovider = \"gpt\"\n", "oracle.provider"},
		{"negative timeout", "[oracle]\ntimeout_seconds = -1\n", "timeout_seconds"},
		{"port range", "[web]\nport = 70000\n", "web.port"},
		{"broken toml", "[oracle\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
		{"", ""},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDefaultConfigPath(t *testing.T) {
	if !strings.HasSuffix(DefaultConfigPath(), filepath.Join("vm-sentinel", "config.toml")) {
		t.Errorf("DefaultConfigPath() = %q", DefaultConfigPath())
	}
}

func TestFindLocalConfig(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[general]\nproject_root = \"/local\""), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(subdir); err != nil {
		t.Fatal(err)
	}

	// macOS temp dirs resolve through /private
	want, _ := filepath.EvalSymlinks(localConfig)
	found, _ := filepath.EvalSymlinks(FindLocalConfig())
	if found != want {
		t.Errorf("FindLocalConfig() = %q, want %q", found, want)
	}
}

func TestFindLocalConfig_NotFound(t *testing.T) {
	root := t.TempDir()

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	if found := FindLocalConfig(); found != "" {
		t.Errorf("FindLocalConfig() = %q, want empty string", found)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	path := writeTempConfig(t, "[general]\nproject_root = \"/explicit\"\n")

	cfg, err := LoadWithLocalFallback(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.ProjectRoot != "/explicit" {
		t.Errorf("ProjectRoot = %q, want /explicit", cfg.General.ProjectRoot)
	}
}

func TestLoadWithLocalFallback_LocalConfig(t *testing.T) {
	root := t.TempDir()
	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[general]\nproject_root = \"/from-local\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.ProjectRoot != "/from-local" {
		t.Errorf("ProjectRoot = %q, want /from-local", cfg.General.ProjectRoot)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
