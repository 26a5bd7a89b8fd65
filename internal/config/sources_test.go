package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDotEnv_FileNotFoundIsIgnored(t *testing.T) {
	t.Parallel()
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
}

func TestLoadDotEnv_RespectsExistingEnv(t *testing.T) {
	t.Setenv("FILEDROP_DOTENV_KEEP", "from-process")

	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"# comment",
		"FILEDROP_DOTENV_A=1",
		"FILEDROP_DOTENV_KEEP=from-file",
		`FILEDROP_DOTENV_QUOTED="a b c"`,
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	if got := os.Getenv("FILEDROP_DOTENV_A"); got != "1" {
		t.Fatalf("FILEDROP_DOTENV_A = %q, want 1", got)
	}
	if got := os.Getenv("FILEDROP_DOTENV_QUOTED"); got != "a b c" {
		t.Fatalf("FILEDROP_DOTENV_QUOTED = %q, want %q", got, "a b c")
	}
	if got := os.Getenv("FILEDROP_DOTENV_KEEP"); got != "from-process" {
		t.Fatalf("FILEDROP_DOTENV_KEEP = %q, want from-process", got)
	}
}

func TestLoadDotEnv_InvalidLineReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(`FILEDROP_DOTENV_BAD="unterminated`), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := LoadDotEnv(path); err == nil {
		t.Fatal("LoadDotEnv() error = nil, want non-nil")
	}
}
