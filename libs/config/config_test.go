package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPortValidation(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8081")
	if err != nil || p != "8081" {
		t.Fatalf("expected fallback 8081, got %q err=%v", p, err)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("TEST_FLAG", "Yes")
	if !Bool("TEST_FLAG", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("TEST_FLAG", "off")
	if Bool("TEST_FLAG", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("TEST_LIST", " a, ,b ,")
	got := List("TEST_LIST")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestDurationAndInt(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	d, err := Duration("TEST_DUR", time.Second)
	if err != nil || d != 90*time.Second {
		t.Fatalf("expected 90s, got %v err=%v", d, err)
	}
	t.Setenv("TEST_DUR", "-1s")
	if _, err := Duration("TEST_DUR", time.Second); err == nil {
		t.Fatalf("expected error for negative duration")
	}
	t.Setenv("TEST_INT", "x")
	if _, err := Int("TEST_INT", 1); err == nil {
		t.Fatalf("expected error for non-integer")
	}
}

func TestLocation(t *testing.T) {
	t.Setenv("TEST_TZ", "")
	loc, err := Location("TEST_TZ", "UTC")
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC, got %v err=%v", loc, err)
	}
	t.Setenv("TEST_TZ", "Mars/Olympus")
	if _, err := Location("TEST_TZ", "UTC"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DOTENV_A=from-file\nDOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOTENV_A", "from-env")
	t.Setenv("DOTENV_B", "")
	os.Unsetenv("DOTENV_B")
	t.Cleanup(func() { os.Unsetenv("DOTENV_B") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("DOTENV_A"); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
	if got := os.Getenv("DOTENV_B"); got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}
